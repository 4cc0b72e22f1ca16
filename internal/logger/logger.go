// Package logger provides structured logging for the bot platform.
// It uses Go's slog package with configurable levels and formats.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new slog Logger with the specified level and format
// and installs it as the default logger.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := New(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w.
func New(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used by tests and as a
// fallback when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Middleware creates a logging middleware for a bot instance's Telegram
// client. It logs every incoming update and how long handling took.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()

			entry := log.With("update_id", update.ID, "update_type", updateType(update))

			switch {
			case update.Message != nil:
				m := update.Message
				entry = entry.With("message_id", m.ID, "chat_id", m.Chat.ID, "text_preview", truncateString(m.Text, 50))
				if m.From != nil {
					entry = entry.With("user_id", m.From.ID)
				}
			case update.CallbackQuery != nil:
				cq := update.CallbackQuery
				entry = entry.With("callback_query_id", cq.ID, "user_id", cq.From.ID, "data", cq.Data)
				switch {
				case cq.Message.Message != nil:
					entry = entry.With("chat_id", cq.Message.Message.Chat.ID, "message_accessible", true)
				case cq.Message.InaccessibleMessage != nil:
					entry = entry.With("chat_id", cq.Message.InaccessibleMessage.Chat.ID, "message_accessible", false)
				}
			}

			entry.DebugContext(ctx, "Processing update")

			next(ctx, b, update)

			entry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func updateType(update *models.Update) string {
	switch {
	case update.Message != nil && len(update.Message.NewChatMembers) > 0:
		return "new_members"
	case update.Message != nil:
		return "message"
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.ChannelPost != nil:
		return "channel_post"
	default:
		return "other"
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
