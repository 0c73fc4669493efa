package sqlite

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	sqlitelib "modernc.org/sqlite"
	sqlitelib3 "modernc.org/sqlite/lib"

	"github.com/hiroq/techbar/store"
)

const createMessageRetries = 3

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	metadata, err := json.Marshal(create.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message metadata")
	}

	// Embeddings are not stored by this driver; vector search is a
	// PostgreSQL-only feature.
	stmt := `INSERT INTO bar_message (conversation_id, content, type, metadata, sequence_num, created_ts)
		VALUES (?, ?, ?, ?,
			(SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM bar_message WHERE conversation_id = ?),
			?)
		RETURNING id, sequence_num`

	var lastErr error
	for attempt := 0; attempt < createMessageRetries; attempt++ {
		err := d.db.QueryRowContext(ctx, stmt,
			create.ConversationID,
			create.Content,
			string(create.Type),
			string(metadata),
			create.ConversationID,
			create.CreatedTs,
		).Scan(&create.ID, &create.SequenceNum)
		if err == nil {
			create.Embedding = nil
			return create, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			break
		}
	}

	return nil, errors.Wrap(lastErr, "failed to create message")
}

func (d *DB) ListRecentMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	query := `SELECT m.id, m.conversation_id, m.content, m.type, m.metadata, m.sequence_num, m.created_ts
		FROM bar_message m
		JOIN bar_conversation c ON m.conversation_id = c.id
		WHERE c.is_archived = 0
		ORDER BY m.created_ts DESC, m.id DESC
		LIMIT ?`
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recent messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var messageType string
		var metadata string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &messageType, &metadata, &m.SequenceNum, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		m.Type = store.MessageType(messageType)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal message metadata")
			}
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}

	return list, nil
}

func (d *DB) SearchSimilarMessages(context.Context, *store.SimilarSearchOptions) ([]*store.SimilarMessage, error) {
	return nil, store.ErrVectorSearchUnsupported
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitelib.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlitelib3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
