package database

import "time"

// BotRecord is one persisted bot definition. Config holds the raw JSON the
// instance was created from.
type BotRecord struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Config    string    `db:"config_json"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
