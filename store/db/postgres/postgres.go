package postgres

import (
	"context"
	"database/sql"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hiroq/techbar/internal/profile"
	"github.com/hiroq/techbar/store"
)

// PostgreSQL is the primary database. It is the only driver with vector
// search support (pgvector extension); similarity retrieval requires it.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// A small pool is enough for a single-room venue.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

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
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_catalog = current_database() AND table_name = 'bar_session' AND table_type = 'BASE TABLE')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

// Migrate applies the schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS bar_session (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			session_key TEXT NOT NULL,
			display_name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_active_ts BIGINT NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bar_session_key_name ON bar_session (session_key, display_name)`,
		`CREATE TABLE IF NOT EXISTS bar_conversation (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			session_id INTEGER NOT NULL REFERENCES bar_session (id),
			title TEXT NOT NULL DEFAULT '',
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bar_conversation_session ON bar_conversation (session_id, is_archived)`,
		`CREATE TABLE IF NOT EXISTS bar_message (
			id SERIAL PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES bar_conversation (id),
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			sequence_num INTEGER NOT NULL,
			embedding vector(1536),
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
