package scheduler

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger adapts an slog logger to gocron's Logger interface.
// gocron's own messages are demoted one level so they don't drown the bot's.
//
//nolint:ireturn // gocron expects its Logger interface
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	return &gocronLogger{log: log.With("source", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.log.Error(msg, args...)
}
