package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcd...", truncateString("abcdefghij", 7))
	assert.Equal(t, "...", truncateString("abcdefghij", 2))
	assert.Equal(t, "ção...", truncateString("çãoçãoção", 6))
}

func TestMiddlewareCallsNext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "debug", true)

	called := false
	handler := Middleware(log)(func(ctx context.Context, b *bot.Bot, update *models.Update) {
		called = true
	})

	handler(context.Background(), nil, &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   2,
			Text: "/start",
			Chat: models.Chat{ID: 3},
			From: &models.User{ID: 4},
		},
	})

	assert.True(t, called)
	assert.Contains(t, buf.String(), `"update_type":"message"`)
	assert.Contains(t, buf.String(), `"chat_id":3`)
	assert.Contains(t, buf.String(), "Finished processing update")
}
