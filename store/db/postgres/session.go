package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hiroq/techbar/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	fields := []string{"uid", "session_key", "display_name", "is_active", "last_active_ts", "created_ts"}
	args := []any{create.UID, create.SessionKey, create.DisplayName, create.IsActive, create.LastActiveTs, create.CreatedTs}

	stmt := `INSERT INTO bar_session (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	return create, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.SessionKey != nil {
		where, args = append(where, "session_key = "+placeholder(len(args)+1)), append(args, *find.SessionKey)
	}
	if find.DisplayName != nil {
		where, args = append(where, "display_name = "+placeholder(len(args)+1)), append(args, *find.DisplayName)
	}
	if find.IsActive != nil {
		where, args = append(where, "is_active = "+placeholder(len(args)+1)), append(args, *find.IsActive)
	}

	query := `SELECT id, uid, session_key, display_name, is_active, last_active_ts, created_ts
		FROM bar_session
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_active_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	list := make([]*store.Session, 0)
	for rows.Next() {
		s := &store.Session{}
		if err := rows.Scan(&s.ID, &s.UID, &s.SessionKey, &s.DisplayName, &s.IsActive, &s.LastActiveTs, &s.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		list = append(list, s)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate sessions")
	}

	return list, nil
}

func (d *DB) UpdateSession(ctx context.Context, update *store.UpdateSession) (*store.Session, error) {
	set, args := []string{}, []any{}

	if update.IsActive != nil {
		set, args = append(set, "is_active = "+placeholder(len(args)+1)), append(args, *update.IsActive)
	}
	if update.LastActiveTs != nil {
		set, args = append(set, "last_active_ts = "+placeholder(len(args)+1)), append(args, *update.LastActiveTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE bar_session SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, session_key, display_name, is_active, last_active_ts, created_ts`
	result := &store.Session{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.SessionKey, &result.DisplayName, &result.IsActive, &result.LastActiveTs, &result.CreatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found")
		}
		return nil, errors.Wrap(err, "failed to update session")
	}

	return result, nil
}

// ListActiveUsers keeps only the freshest row per display name, modeling
// one visible presence per person even when multiple session rows exist.
func (d *DB) ListActiveUsers(ctx context.Context, activeSince time.Time) ([]*store.ActiveUser, error) {
	query := `SELECT DISTINCT ON (display_name) display_name, last_active_ts, session_key
		FROM bar_session
		WHERE is_active = TRUE AND last_active_ts > ` + placeholder(1) + `
		ORDER BY display_name, last_active_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, activeSince.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active users")
	}
	defer rows.Close()

	list := make([]*store.ActiveUser, 0)
	for rows.Next() {
		user := &store.ActiveUser{}
		var lastActiveTs int64
		if err := rows.Scan(&user.DisplayName, &lastActiveTs, &user.SessionKey); err != nil {
			return nil, errors.Wrap(err, "failed to scan active user")
		}
		user.LastActive = time.Unix(lastActiveTs, 0).UTC()
		list = append(list, user)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate active users")
	}

	return list, nil
}
