// Package platform runs the long-lived parts of the process: the HTTP API,
// the optional control queue consumer and the bot manager.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/lifecycle"
)

// Manager is the part of the lifecycle manager the platform drives.
type Manager interface {
	CreateWithID(ctx context.Context, id string, cfg *botconfig.BotConfiguration) (lifecycle.Info, error)
	Restore(ctx context.Context) (int, error)
	Shutdown(ctx context.Context) error
}

// Consumer is a background loop that runs until its context ends.
type Consumer interface {
	Run(ctx context.Context) error
}

// Options configures a Platform.
type Options struct {
	Addr            string
	Handler         http.Handler
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	Manager Manager
	// Restore reloads persisted bots before serving.
	Restore bool
	// BotFiles are bot configurations created at boot. Each file maps to a
	// fixed bot id, so a file bot that was restored is not created twice.
	BotFiles []string
	// Consumer is optional.
	Consumer Consumer

	Logger *slog.Logger
}

// Platform owns the process lifecycle.
type Platform struct {
	opts   Options
	logger *slog.Logger
	ready  chan net.Addr
}

// New creates a Platform.
func New(opts Options) (*Platform, error) {
	if opts.Manager == nil {
		return nil, errors.New("platform requires a manager")
	}
	if opts.Handler == nil {
		return nil, errors.New("platform requires an HTTP handler")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Platform{
		opts:   opts,
		logger: opts.Logger.With("component", "platform"),
		ready:  make(chan net.Addr, 1),
	}, nil
}

// Ready yields the address the HTTP server listens on once it is bound.
func (p *Platform) Ready() <-chan net.Addr { return p.ready }

// Run boots the bots, serves until ctx is cancelled or a component fails,
// then stops every instance.
func (p *Platform) Run(ctx context.Context) error {
	p.logger.Info("Starting platform...")

	p.boot(ctx)

	ln, err := net.Listen("tcp", p.opts.Addr)
	if err != nil {
		p.shutdownManager()
		return fmt.Errorf("failed to listen on %s: %w", p.opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           p.opts.Handler,
		ReadHeaderTimeout: p.opts.ReadTimeout,
		ReadTimeout:       p.opts.ReadTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		p.ready <- ln.Addr()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		p.logger.Info("Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), p.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.logger.Error("Error stopping HTTP server", "error", err)
		}
		return nil
	})

	if p.opts.Consumer != nil {
		g.Go(func() error {
			if err := p.opts.Consumer.Run(gCtx); err != nil {
				return fmt.Errorf("control queue consumer failed: %w", err)
			}
			return nil
		})
	}

	p.logger.Info("Platform running. Waiting for shutdown signal or error...")
	err = g.Wait()

	p.shutdownManager()

	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("Platform stopped due to error", "error", err)
		return err
	}

	p.logger.Info("Platform stopped gracefully.")
	return nil
}

// boot restores persisted bots and creates the configured ones. Failures
// are logged; a broken bot never keeps the others from starting.
func (p *Platform) boot(ctx context.Context) {
	if p.opts.Restore {
		n, err := p.opts.Manager.Restore(ctx)
		if err != nil {
			p.logger.Error("Failed to restore bots", "error", err)
		} else {
			p.logger.Info("Restored bots", "count", n)
		}
	}

	for _, path := range p.opts.BotFiles {
		cfg, err := botconfig.LoadFile(path)
		if err != nil {
			p.logger.Error("Failed to load bot file", "path", path, "error", err)
			continue
		}
		id := FileBotID(path)
		info, err := p.opts.Manager.CreateWithID(ctx, id, cfg)
		switch {
		case apperrors.Code(err) == apperrors.CodeConflict:
			p.logger.Info("Bot from file already registered, keeping the stored instance", "path", path, "bot_id", id)
			continue
		case err != nil:
			p.logger.Error("Failed to create bot from file", "path", path, "error", err)
			continue
		}
		p.logger.Info("Created bot from file", "path", path, "bot_id", info.ID, "name", info.Name)
	}
}

// FileBotID derives a stable bot id from a configuration file's path. The
// id is safe to use in webhook URLs.
func FileBotID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, base)

	sum, _, _ := strings.Cut(uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String(), "-")
	return "file_" + name + "_" + sum
}

func (p *Platform) shutdownManager() {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.ShutdownTimeout)
	defer cancel()
	if err := p.opts.Manager.Shutdown(ctx); err != nil {
		p.logger.Error("Error stopping bots", "error", err)
	}
}
