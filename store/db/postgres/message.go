package postgres

import (
	"context"
	"encoding/json"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hiroq/techbar/store"
)

// createMessageRetries bounds retries when two writers race for the same
// sequence number. The unique index on (conversation_id, sequence_num)
// rejects the loser, which recomputes and tries again.
const createMessageRetries = 3

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	metadata, err := json.Marshal(create.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message metadata")
	}

	var embedding any
	if len(create.Embedding) > 0 {
		embedding = pgvector.NewVector(create.Embedding)
	}

	// The sequence number is computed inside the INSERT so the read and
	// the write happen in one statement.
	stmt := `INSERT INTO bar_message (conversation_id, content, type, metadata, sequence_num, embedding, created_ts)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM bar_message WHERE conversation_id = $1),
			$5, $6)
		RETURNING id, sequence_num`

	var lastErr error
	for attempt := 0; attempt < createMessageRetries; attempt++ {
		err := d.db.QueryRowContext(ctx, stmt,
			create.ConversationID,
			create.Content,
			string(create.Type),
			metadata,
			embedding,
			create.CreatedTs,
		).Scan(&create.ID, &create.SequenceNum)
		if err == nil {
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
		WHERE c.is_archived = FALSE
		ORDER BY m.created_ts DESC, m.id DESC
		LIMIT ` + placeholder(1)
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recent messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var messageType string
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &messageType, &metadata, &m.SequenceNum, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		m.Type = store.MessageType(messageType)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
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

// SearchSimilarMessages ranks stored embeddings by cosine similarity,
// keeping at most MaxPerAuthor hits per author. The <=> operator computes
// cosine distance, so similarity is 1 - distance.
func (d *DB) SearchSimilarMessages(ctx context.Context, opts *store.SimilarSearchOptions) ([]*store.SimilarMessage, error) {
	vector := pgvector.NewVector(opts.Embedding)

	query := `WITH similar_messages AS (
			SELECT
				m.content,
				m.metadata->>'display_name' AS display_name,
				1 - (m.embedding <=> $1) AS similarity,
				ROW_NUMBER() OVER (
					PARTITION BY m.metadata->>'display_name'
					ORDER BY m.embedding <=> $1
				) AS rank
			FROM bar_message m
			WHERE m.embedding IS NOT NULL
				AND 1 - (m.embedding <=> $1) > $2
				AND m.created_ts < $3
		)
		SELECT content, display_name, similarity
		FROM similar_messages
		WHERE rank <= $4
		ORDER BY similarity DESC`

	rows, err := d.db.QueryContext(ctx, query,
		vector,
		opts.Threshold,
		opts.CreatedBefore.Unix(),
		opts.MaxPerAuthor,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search similar messages")
	}
	defer rows.Close()

	list := make([]*store.SimilarMessage, 0)
	for rows.Next() {
		m := &store.SimilarMessage{}
		if err := rows.Scan(&m.Content, &m.DisplayName, &m.Similarity); err != nil {
			return nil, errors.Wrap(err, "failed to scan similar message")
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate similar messages")
	}

	return list, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
