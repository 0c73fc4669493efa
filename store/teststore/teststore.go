// Package teststore provides an in-memory store.Driver for tests.
package teststore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hiroq/techbar/store"
)

// Driver is an in-memory store.Driver. Exported fields seed state and
// inject failures; they must be set before the driver is shared between
// goroutines.
type Driver struct {
	mu sync.Mutex

	Sessions      []*store.Session
	Conversations []*store.Conversation
	Messages      []*store.Message
	ActiveUsers   []*store.ActiveUser

	SimilarResults []*store.SimilarMessage
	SimilarErr     error
	// LastSearch records the options of the most recent similarity query.
	LastSearch *store.SimilarSearchOptions

	CreateMessageErr   error
	ListSessionsErr    error
	CreateSessionErr   error
	ListActiveUsersErr error

	nextID int32
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) GetDB() *sql.DB { return nil }
func (d *Driver) Close() error   { return nil }

func (d *Driver) IsInitialized(ctx context.Context) (bool, error) { return true, nil }
func (d *Driver) Migrate(ctx context.Context) error               { return nil }

func (d *Driver) allocID() int32 {
	d.nextID++
	return d.nextID
}

func (d *Driver) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateSessionErr != nil {
		return nil, d.CreateSessionErr
	}
	session := *create
	session.ID = d.allocID()
	d.Sessions = append(d.Sessions, &session)
	return &session, nil
}

func (d *Driver) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListSessionsErr != nil {
		return nil, d.ListSessionsErr
	}
	var result []*store.Session
	for _, session := range d.Sessions {
		if find.SessionKey != nil && session.SessionKey != *find.SessionKey {
			continue
		}
		if find.DisplayName != nil && session.DisplayName != *find.DisplayName {
			continue
		}
		if find.IsActive != nil && session.IsActive != *find.IsActive {
			continue
		}
		result = append(result, session)
	}
	return result, nil
}

func (d *Driver) UpdateSession(ctx context.Context, update *store.UpdateSession) (*store.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, session := range d.Sessions {
		if session.ID == update.ID {
			if update.LastActiveTs != nil {
				session.LastActiveTs = *update.LastActiveTs
			}
			if update.IsActive != nil {
				session.IsActive = *update.IsActive
			}
			return session, nil
		}
	}
	return nil, errors.New("session not found")
}

func (d *Driver) ListActiveUsers(ctx context.Context, activeSince time.Time) ([]*store.ActiveUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListActiveUsersErr != nil {
		return nil, d.ListActiveUsersErr
	}
	return d.ActiveUsers, nil
}

func (d *Driver) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conversation := *create
	conversation.ID = d.allocID()
	d.Conversations = append(d.Conversations, &conversation)
	return &conversation, nil
}

func (d *Driver) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []*store.Conversation
	for _, conversation := range d.Conversations {
		if find.SessionID != nil && conversation.SessionID != *find.SessionID {
			continue
		}
		if find.IsArchived != nil && conversation.IsArchived != *find.IsArchived {
			continue
		}
		result = append(result, conversation)
	}
	return result, nil
}

func (d *Driver) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conversation := range d.Conversations {
		if conversation.ID == update.ID {
			if update.UpdatedTs != nil {
				conversation.UpdatedTs = *update.UpdatedTs
			}
			if update.IsArchived != nil {
				conversation.IsArchived = *update.IsArchived
			}
			return conversation, nil
		}
	}
	return nil, errors.New("conversation not found")
}

func (d *Driver) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateMessageErr != nil {
		return nil, d.CreateMessageErr
	}
	message := *create
	message.ID = d.allocID()
	var maxSeq int32
	for _, existing := range d.Messages {
		if existing.ConversationID == message.ConversationID && existing.SequenceNum > maxSeq {
			maxSeq = existing.SequenceNum
		}
	}
	message.SequenceNum = maxSeq + 1
	d.Messages = append(d.Messages, &message)
	return &message, nil
}

func (d *Driver) ListRecentMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Newest first, like the real drivers.
	var result []*store.Message
	for i := len(d.Messages) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, d.Messages[i])
	}
	return result, nil
}

func (d *Driver) SearchSimilarMessages(ctx context.Context, opts *store.SimilarSearchOptions) ([]*store.SimilarMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LastSearch = opts
	if d.SimilarErr != nil {
		return nil, d.SimilarErr
	}
	return d.SimilarResults, nil
}

// SavedMessages returns a snapshot of all persisted messages in insertion
// order.
func (d *Driver) SavedMessages() []*store.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]*store.Message, len(d.Messages))
	copy(result, d.Messages)
	return result
}
