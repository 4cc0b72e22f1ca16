// Package database persists bot definitions so instances survive a restart.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/CardosoB8/Bot-telegram2025/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// pragmas applied to every connection opened from a plain file path.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// NewDB opens the bot definition database at path, creating its directory if
// needed, and migrates it to the latest schema. path is a file path or a
// ready-made "file:" DSN.
func NewDB(path string, logger *slog.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "database")

	file := FilePath(path)
	if file == "" {
		return nil, errors.New("database path is empty")
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Connect("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open bot database %s: %w", file, err)
	}
	// One writer; the store is only touched on lifecycle transitions.
	db.SetMaxOpenConns(1)

	version, err := migrateUp(db.DB)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("Bot database ready", "path", file, "schema_version", version)
	return db, nil
}

// CloseDB closes db, logging instead of returning the error so it can be
// deferred.
func CloseDB(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		slog.Error("Failed to close bot database", "error", err)
	}
}

// migrateUp applies the embedded migrations and returns the resulting
// schema version.
func migrateUp(db *sql.DB) (uint, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to migrate bot database: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("bot database schema version %d is dirty", version)
	}
	return version, nil
}

// DSN turns a plain file path into a modernc sqlite DSN with the default
// pragmas. DSNs that already start with "file:" are returned unchanged.
func DSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// FilePath returns the file a DSN or plain path points at, without the
// "file:" prefix, query string or URL escaping.
func FilePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(dsn, '?'); i != -1 {
		dsn = dsn[:i]
	}
	if decoded, err := url.PathUnescape(dsn); err == nil {
		return decoded
	}
	return dsn
}
