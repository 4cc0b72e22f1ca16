// Package telegram implements the transport contract on top of the
// go-telegram/bot client. Every bot instance gets its own client, delivered
// either by long polling or through a webhook served by the management API.
package telegram

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/CardosoB8/Bot-telegram2025/internal/config"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// NewTelegramBot creates a go-telegram client. The token is checked against
// the Bot API (getMe) before returning.
func NewTelegramBot(token string, cfg config.TelegramConfig, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	if cfg.PollTimeout > 0 {
		opts = append(opts, bot.WithHTTPClient(cfg.PollTimeout, &http.Client{Timeout: cfg.PollTimeout + 10*time.Second}))
	}
	if cfg.Mode == config.ModeWebhook && cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		logger.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Debug("Telegram bot instance created", "token_prefix", tokenPrefix(token))
	return b, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}

// chatID converts a target to what the Bot API expects: numeric ids as int64,
// public usernames as-is.
func chatID(target string) any {
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return id
	}
	return target
}

func replyMarkup(k transport.Keyboard) models.ReplyMarkup {
	if len(k) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(k))
	for _, row := range k {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Text,
				URL:          b.URL,
				CallbackData: b.CallbackData,
			})
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func linkPreview(opts transport.SendOptions) *models.LinkPreviewOptions {
	if !opts.DisablePreview {
		return nil
	}
	return &models.LinkPreviewOptions{IsDisabled: bot.True()}
}
