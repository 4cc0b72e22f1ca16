// Package queue consumes bot control requests from a Redis list, for
// deployments where another service drives the bot manager.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/lifecycle"
)

// Message types.
const (
	TypeCreate  = "create"
	TypeStart   = "start"
	TypeStop    = "stop"
	TypeRestart = "restart"
	TypeDelete  = "delete"
)

// Message is one control request.
type Message struct {
	Type      string          `json:"type"`
	BotID     string          `json:"bot_id,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Result is pushed to the results list after a message is handled.
type Result struct {
	Type      string          `json:"type"`
	BotID     string          `json:"bot_id,omitempty"`
	OK        bool            `json:"ok"`
	Status    lifecycle.State `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is the part of the Redis client the consumer uses.
type Client interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// Manager is the part of the lifecycle manager control messages drive.
type Manager interface {
	Create(ctx context.Context, cfg *botconfig.BotConfiguration) (lifecycle.Info, error)
	Control(ctx context.Context, id string, action lifecycle.Action) (lifecycle.Info, error)
	Delete(ctx context.Context, id string) error
}

// Consumer pops control messages and applies them one at a time.
type Consumer struct {
	client  Client
	queue   string
	results string
	mgr     Manager
	logger  *slog.Logger

	// PollTimeout bounds one BLPOP so cancellation is noticed.
	PollTimeout time.Duration
	// RetryDelay is the pause after a Redis error.
	RetryDelay time.Duration
}

// NewConsumer creates a consumer for the given list. Results go to
// "<queue>:results".
func NewConsumer(client Client, queue string, mgr Manager, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:      client,
		queue:       queue,
		results:     queue + ":results",
		mgr:         mgr,
		logger:      logger.With("component", "queue", "queue", queue),
		PollTimeout: 5 * time.Second,
		RetryDelay:  2 * time.Second,
	}
}

// NewClient builds a go-redis client and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Control queue consumer started")
	defer c.logger.Info("Control queue consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := c.client.BLPop(ctx, c.PollTimeout, c.queue).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to pop control message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.RetryDelay):
			}
			continue
		}

		// BLPOP replies with [key, value].
		if len(res) != 2 {
			c.logger.Warn("Unexpected BLPOP reply", "reply", res)
			continue
		}
		c.publish(ctx, c.Handle(ctx, []byte(res[1])))
	}
}

// Handle applies one raw message and reports the outcome.
func (c *Consumer) Handle(ctx context.Context, payload []byte) Result {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed control message", "error", err)
		return Result{OK: false, Error: fmt.Sprintf("malformed message: %v", err), Code: "BAD_REQUEST", Timestamp: time.Now().Unix()}
	}

	log := c.logger.With("type", msg.Type, "bot_id", msg.BotID)
	res := Result{Type: msg.Type, BotID: msg.BotID}

	var info lifecycle.Info
	var err error
	switch msg.Type {
	case TypeCreate:
		var cfg *botconfig.BotConfiguration
		cfg, err = botconfig.Parse(msg.Config)
		if err != nil {
			err = apperrors.NewConfigurationError([]string{err.Error()}, nil)
			break
		}
		if err = botconfig.Validate(cfg).Err(); err == nil {
			info, err = c.mgr.Create(ctx, cfg)
		}
	case TypeStart, TypeStop, TypeRestart:
		if msg.BotID == "" {
			err = apperrors.NewInvalidActionError(msg.Type + " requires bot_id")
			break
		}
		info, err = c.mgr.Control(ctx, msg.BotID, lifecycle.Action(msg.Type))
	case TypeDelete:
		if msg.BotID == "" {
			err = apperrors.NewInvalidActionError("delete requires bot_id")
			break
		}
		err = c.mgr.Delete(ctx, msg.BotID)
		info.Status = lifecycle.StateDestroyed
	default:
		err = apperrors.NewInvalidActionError(fmt.Sprintf("unknown message type %q", msg.Type))
	}

	res.Timestamp = time.Now().Unix()
	if err != nil {
		log.Warn("Control message failed", "error", err)
		res.Error = err.Error()
		res.Code = apperrors.Code(err)
		return res
	}

	if info.ID != "" {
		res.BotID = info.ID
	}
	res.OK = true
	res.Status = info.Status
	log.Info("Control message applied", "status", res.Status)
	return res
}

func (c *Consumer) publish(ctx context.Context, res Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("Failed to encode control result", "error", err)
		return
	}
	if err := c.client.RPush(ctx, c.results, data).Err(); err != nil {
		c.logger.Warn("Failed to publish control result", "error", err)
	}
}
