package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/CardosoB8/Bot-telegram2025/internal/config"
	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/logger"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// Gateway connects bot instances to Telegram. In webhook mode it also keeps
// the per-instance webhook handlers that the HTTP server routes to.
type Gateway struct {
	cfg    config.TelegramConfig
	logger *slog.Logger

	mu    sync.RWMutex
	hooks map[string]http.HandlerFunc
}

var _ transport.Gateway = (*Gateway)(nil)

// NewGateway creates a Telegram gateway.
func NewGateway(cfg config.TelegramConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:    cfg,
		logger: logger.With("component", "telegram_gateway"),
		hooks:  make(map[string]http.HandlerFunc),
	}
}

// WebhookURL is where Telegram delivers updates for an instance.
func (g *Gateway) WebhookURL(id string) string {
	return strings.TrimRight(g.cfg.BaseURL, "/") + "/webhook/" + id
}

// Webhook returns the update handler for an instance registered in webhook
// mode.
func (g *Gateway) Webhook(id string) (http.Handler, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.hooks[id]
	return h, ok
}

// Connect creates a client for the registration and starts delivering
// updates to its handler. Failures are reported as TransportError.
func (g *Gateway) Connect(ctx context.Context, reg transport.Registration) (transport.Conn, error) {
	log := reg.Logger
	if log == nil {
		log = g.logger
	}
	log = log.With("component", "telegram", "bot_id", reg.ID)

	if reg.Handler == nil {
		return nil, apperrors.NewTransportError("connect", errors.New("nil event handler"))
	}

	opts := []bot.Option{
		bot.WithMiddlewares(logger.Middleware(log)),
		bot.WithDefaultHandler(eventHandler(reg.Handler)),
		bot.WithErrorsHandler(func(err error) {
			log.Warn("Telegram API error", "error", err)
		}),
	}

	b, err := NewTelegramBot(reg.Token, g.cfg, log, opts...)
	if err != nil {
		return nil, apperrors.NewTransportError("connect", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &conn{
		id:      reg.ID,
		bot:     b,
		gateway: g,
		logger:  log,
		guard:   newGuard(reg.ID, log),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if g.cfg.Mode == config.ModeWebhook {
		url := g.WebhookURL(reg.ID)
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: url, SecretToken: g.cfg.WebhookSecret}); err != nil {
			cancel()
			return nil, apperrors.NewTransportError("set_webhook", err)
		}

		g.mu.Lock()
		g.hooks[reg.ID] = b.WebhookHandler()
		g.mu.Unlock()

		go func() {
			defer close(c.done)
			b.StartWebhook(runCtx)
		}()
		log.Info("Webhook registered", "url", url)
		return c, nil
	}

	// getUpdates is rejected while a webhook is set.
	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		log.Warn("Failed to clear webhook before polling", "error", err)
	}

	go func() {
		defer close(c.done)
		b.Start(runCtx)
	}()
	log.Info("Long polling started")
	return c, nil
}

// Teardown deletes the webhook of a bot that is not connected, dropping any
// pending updates.
func (g *Gateway) Teardown(ctx context.Context, id, token string) error {
	g.unregister(id)

	b, err := NewTelegramBot(token, g.cfg, g.logger, bot.WithSkipGetMe())
	if err != nil {
		return apperrors.NewTransportError("teardown", err)
	}
	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
		return apperrors.NewTransportError("delete_webhook", err)
	}
	g.logger.Info("Webhook removed", "bot_id", id)
	return nil
}

func (g *Gateway) unregister(id string) {
	g.mu.Lock()
	delete(g.hooks, id)
	g.mu.Unlock()
}

func eventHandler(h transport.Handler) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		ev, ok := toEvent(update)
		if !ok {
			return
		}
		h(ctx, ev)
	}
}
