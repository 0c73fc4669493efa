package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ErrVectorSearchUnsupported is returned by drivers that cannot run
// similarity queries. Callers treat it as "no context available".
var ErrVectorSearchUnsupported = errors.New("vector search is not supported by this driver")

// Driver is an interface for store driver.
// It contains all methods that a store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// Session model related methods.
	CreateSession(ctx context.Context, create *Session) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)
	UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error)

	// ListActiveUsers returns the freshest active session per distinct
	// display name among sessions updated after activeSince.
	ListActiveUsers(ctx context.Context, activeSince time.Time) ([]*ActiveUser, error)

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)

	// Message model related methods. Messages are append-only.
	// CreateMessage assigns the next per-conversation sequence number
	// atomically with the insert.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListRecentMessages(ctx context.Context, limit int) ([]*Message, error)

	// SearchSimilarMessages performs cosine-similarity search over stored
	// message embeddings. Drivers without vector support return
	// ErrVectorSearchUnsupported.
	SearchSimilarMessages(ctx context.Context, opts *SimilarSearchOptions) ([]*SimilarMessage, error)
}
