// Package main contains the entrypoint for the bot platform.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CardosoB8/Bot-telegram2025/internal/api"
	"github.com/CardosoB8/Bot-telegram2025/internal/config"
	"github.com/CardosoB8/Bot-telegram2025/internal/database"
	"github.com/CardosoB8/Bot-telegram2025/internal/lifecycle"
	"github.com/CardosoB8/Bot-telegram2025/internal/logger"
	"github.com/CardosoB8/Bot-telegram2025/internal/platform"
	"github.com/CardosoB8/Bot-telegram2025/internal/queue"
	"github.com/CardosoB8/Bot-telegram2025/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires configuration, storage, the Telegram gateway, the bot manager and
// the HTTP API, then blocks until shutdown. It returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	var store database.Store
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database.Path, log)
		if err != nil {
			log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
			return 1
		}
		defer database.CloseDB(db)
		store = database.NewStore(db, log)
	}

	gateway := telegram.NewGateway(cfg.Telegram, log)

	mgr, err := lifecycle.NewManager(lifecycle.Options{
		Gateway:  gateway,
		Store:    store,
		Logger:   log,
		Location: cfg.Scheduler.Location(),
		Signal: lifecycle.SignalDefaults{
			WarmUp:      cfg.Signal.WarmUp,
			StepDelay:   cfg.Signal.StepDelay,
			RotateEvery: cfg.Signal.RotateEvery,
		},
	})
	if err != nil {
		log.Error("Failed to create bot manager", "error", err)
		return 1
	}

	var consumer platform.Consumer
	if cfg.Redis.Enabled {
		client, err := queue.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error("Failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			return 1
		}
		defer func() { _ = client.Close() }()
		consumer = queue.NewConsumer(client, cfg.Redis.Queue, mgr, log)
	}

	p, err := platform.New(platform.Options{
		Addr:            cfg.HTTP.Addr,
		Handler:         api.NewRouter(log, mgr, gateway),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Manager:         mgr,
		Restore:         store != nil,
		BotFiles:        cfg.Bots.Files,
		Consumer:        consumer,
		Logger:          log,
	})
	if err != nil {
		log.Error("Failed to create platform", "error", err)
		return 1
	}

	if err := p.Run(ctx); err != nil {
		log.Error("Platform stopped due to error", "error", err)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	return 0
}
