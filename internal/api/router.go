// Package api exposes the bot manager over HTTP and routes webhook updates
// to their instances.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/lifecycle"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Manager is the subset of the lifecycle manager the API calls.
type Manager interface {
	Create(ctx context.Context, cfg *botconfig.BotConfiguration) (lifecycle.Info, error)
	List() []lifecycle.Info
	Get(id string) (lifecycle.Info, error)
	Control(ctx context.Context, id string, action lifecycle.Action) (lifecycle.Info, error)
	Delete(ctx context.Context, id string) error
	Validate(cfg *botconfig.BotConfiguration) botconfig.Result
	SendTest(ctx context.Context, id, target, text string) error
}

// Webhooks resolves the update handler of an instance in webhook mode.
type Webhooks interface {
	Webhook(id string) (http.Handler, bool)
}

// ControlRequest is the body of POST /api/bots/{id}/control.
type ControlRequest struct {
	Action lifecycle.Action `json:"action"`
}

// SendTestRequest is the body of POST /api/bots/{id}/send-test.
type SendTestRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

type handlers struct {
	logger *slog.Logger
	mgr    Manager
	hooks  Webhooks
}

// NewRouter wires the management API and the webhook endpoint. hooks may be
// nil when no instance uses webhooks.
func NewRouter(logger *slog.Logger, mgr Manager, hooks Webhooks) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{logger: logger.With("component", "api"), mgr: mgr, hooks: hooks}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("POST /api/bots", h.create)
	mux.HandleFunc("GET /api/bots", h.list)
	mux.HandleFunc("GET /api/bots/{id}", h.get)
	mux.HandleFunc("DELETE /api/bots/{id}", h.delete)
	mux.HandleFunc("POST /api/bots/{id}/control", h.control)
	mux.HandleFunc("POST /api/bots/{id}/send-test", h.sendTest)
	mux.HandleFunc("POST /api/validate", h.validate)

	mux.HandleFunc("POST /webhook/{id}", h.webhook)

	return withLogging(h.logger, mux)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "bots": len(h.mgr.List())})
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfig(w, r)
	if !ok {
		return
	}
	info, err := h.mgr.Create(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *handlers) list(w http.ResponseWriter, _ *http.Request) {
	bots := h.mgr.List()
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots, "count": len(bots)})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	info, err := h.mgr.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.mgr.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(lifecycle.StateDestroyed)})
}

func (h *handlers) control(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}
	info, err := h.mgr.Control(r.Context(), r.PathValue("id"), req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) sendTest(w http.ResponseWriter, r *http.Request) {
	var req SendTestRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if err := h.mgr.SendTest(r.Context(), r.PathValue("id"), req.Target, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfig(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.mgr.Validate(cfg))
}

func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.hooks == nil {
		http.NotFound(w, r)
		return
	}
	hook, ok := h.hooks.Webhook(id)
	if !ok {
		h.logger.Debug("Webhook for unknown bot", "bot_id", id)
		http.NotFound(w, r)
		return
	}
	hook.ServeHTTP(w, r)
}

func (h *handlers) readConfig(w http.ResponseWriter, r *http.Request) (*botconfig.BotConfiguration, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return nil, false
	}
	cfg, err := botconfig.Parse(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return nil, false
	}
	return cfg, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "request body is empty")
		} else {
			writeBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		}
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging logs one line per request.
func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
