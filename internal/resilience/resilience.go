// Package resilience guards outbound platform calls with a circuit breaker.
// Calls are attempted once; an open breaker fails them fast instead.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Config configures a Guard.
type Config struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// Harmless errors reach the caller but do not count against the
	// breaker, e.g. a rejected request that proves the platform is up.
	Harmless func(err error) bool
}

// Guard wraps calls to one remote endpoint.
type Guard struct {
	cb *gobreaker.CircuitBreaker
}

// NewGuard creates a Guard. Zero fields take defaults.
func NewGuard(cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	log := logger.With("breaker", cfg.Name)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures) //nolint:gosec // small positive int
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}
	if cfg.Harmless != nil {
		harmless := cfg.Harmless
		settings.IsSuccessful = func(err error) bool {
			return err == nil || harmless(err)
		}
	}

	return &Guard{cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state: "closed", "half-open" or "open".
func (g *Guard) State() string {
	return g.cb.State().String()
}

// Do runs op once through the breaker.
func (g *Guard) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, op(ctx)
	})
	return err
}
