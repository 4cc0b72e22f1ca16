package telegram

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/CardosoB8/Bot-telegram2025/internal/resilience"
)

// newGuard builds the breaker for one instance's outbound sends. A token
// that keeps failing stops costing a round trip per send.
func newGuard(id string, log *slog.Logger) *resilience.Guard {
	return resilience.NewGuard(resilience.Config{
		Name:        "telegram:" + id,
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		Harmless:    rejectedByAPI,
	}, log)
}

// rejectedByAPI reports errors that prove Telegram answered: bad chat ids,
// blocked bots and missing messages are the caller's problem, not an outage.
func rejectedByAPI(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorForbidden) ||
		errors.Is(err, bot.ErrorNotFound)
}
