package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the persistence operations for bot definitions.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveBot inserts a bot definition or replaces the stored one.
	SaveBot(ctx context.Context, rec *BotRecord) error

	// UpdateStatus records the lifecycle state of a bot.
	UpdateStatus(ctx context.Context, id, status string) error

	// GetBot returns the bot with the given id. Returns nil, nil if not found.
	GetBot(ctx context.Context, id string) (*BotRecord, error)

	// ListBots returns every stored bot, oldest first.
	ListBots(ctx context.Context) ([]BotRecord, error)

	// DeleteBot removes a bot definition. Deleting a missing id is not an error.
	DeleteBot(ctx context.Context, id string) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveBot(ctx context.Context, rec *BotRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot save nil bot record")
	}
	if rec.ID == "" {
		return fmt.Errorf("bot record must have an id")
	}
	if rec.Config == "" {
		return fmt.Errorf("bot record must have a configuration")
	}

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
        INSERT INTO bot_configs (id, name, config_json, status, created_at, updated_at)
        VALUES (:id, :name, :config_json, :status, :created_at, :updated_at)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            config_json = excluded.config_json,
            status = excluded.status,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		s.logger.ErrorContext(ctx, "Error saving bot", "bot_id", rec.ID, "error", err)
		return fmt.Errorf("failed to save bot %s: %w", rec.ID, err)
	}

	s.logger.DebugContext(ctx, "Bot saved", "bot_id", rec.ID, "status", rec.Status)
	return nil
}

func (s *sqlxStore) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bot_configs SET status = ?, updated_at = ? WHERE id = ?;`,
		status, s.now(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating bot status", "bot_id", id, "error", err)
		return fmt.Errorf("failed to update status of bot %s: %w", id, err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		s.logger.WarnContext(ctx, "Status update matched no bot", "bot_id", id)
	}
	return nil
}

func (s *sqlxStore) GetBot(ctx context.Context, id string) (*BotRecord, error) {
	var rec BotRecord
	err := s.db.GetContext(ctx, &rec, `
        SELECT id, name, config_json, status, created_at, updated_at
        FROM bot_configs
        WHERE id = ?;
    `, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bot %s: %w", id, err)
	}
	return &rec, nil
}

func (s *sqlxStore) ListBots(ctx context.Context) ([]BotRecord, error) {
	var recs []BotRecord
	err := s.db.SelectContext(ctx, &recs, `
        SELECT id, name, config_json, status, created_at, updated_at
        FROM bot_configs
        ORDER BY created_at ASC, id ASC;
    `)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing bots", "error", err)
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	return recs, nil
}

func (s *sqlxStore) DeleteBot(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE id = ?;`, id); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting bot", "bot_id", id, "error", err)
		return fmt.Errorf("failed to delete bot %s: %w", id, err)
	}
	s.logger.DebugContext(ctx, "Bot deleted", "bot_id", id)
	return nil
}
