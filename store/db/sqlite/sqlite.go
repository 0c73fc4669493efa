package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hiroq/techbar/internal/profile"
	"github.com/hiroq/techbar/store"
)

// SQLite is the development/testing driver. It supports everything except
// vector search; similarity retrieval degrades to an empty context block.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// SQLite serializes writers; more connections only add contention.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{
		db:      db,
		profile: profile,
	}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'bar_session')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

// Migrate applies the schema. Statements are idempotent. The embedding
// column is kept for schema parity but never queried by this driver.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bar_session (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			session_key TEXT NOT NULL,
			display_name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			last_active_ts BIGINT NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bar_session_key_name ON bar_session (session_key, display_name)`,
		`CREATE TABLE IF NOT EXISTS bar_conversation (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			session_id INTEGER NOT NULL REFERENCES bar_session (id),
			title TEXT NOT NULL DEFAULT '',
			is_archived BOOLEAN NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bar_conversation_session ON bar_conversation (session_id, is_archived)`,
		`CREATE TABLE IF NOT EXISTS bar_message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES bar_conversation (id),
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			sequence_num INTEGER NOT NULL,
			embedding BLOB,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bar_message_sequence ON bar_message (conversation_id, sequence_num)`,
		`CREATE INDEX IF NOT EXISTS idx_bar_message_created ON bar_message (created_ts DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}
