package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hiroq/techbar/internal/profile"
)

// Embedder generates embedding vectors for message content. Embedding is
// always best-effort: a failure degrades to a message without a vector.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Store provides database access to all durable chat objects and owns the
// gateway semantics on top of the raw driver: lazy session reactivation,
// single non-archived conversation per session, and append-only message
// sequencing.
type Store struct {
	profile  *profile.Profile
	driver   Driver
	embedder Embedder
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

// SetEmbedder wires the embedding capability used for user messages.
// A nil embedder disables embedding generation.
func (s *Store) SetEmbedder(embedder Embedder) {
	s.embedder = embedder
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetOrCreateSession looks up an active session matching both the session
// key and display name, refreshing its last-active timestamp, or creates a
// new one. Calling it twice in a row yields the same session.
func (s *Store) GetOrCreateSession(ctx context.Context, sessionKey, displayName string) (*Session, error) {
	isActive := true
	sessions, err := s.driver.ListSessions(ctx, &FindSession{
		SessionKey:  &sessionKey,
		DisplayName: &displayName,
		IsActive:    &isActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	now := time.Now().Unix()
	if len(sessions) > 0 {
		session := sessions[0]
		updated, err := s.driver.UpdateSession(ctx, &UpdateSession{
			ID:           session.ID,
			LastActiveTs: &now,
		})
		if err != nil {
			// The session exists; a failed touch is not fatal.
			slog.Warn("failed to refresh session activity", "session_id", session.ID, "error", err)
			return session, nil
		}
		return updated, nil
	}

	session, err := s.driver.CreateSession(ctx, &Session{
		UID:          shortuuid.New(),
		SessionKey:   sessionKey,
		DisplayName:  displayName,
		IsActive:     true,
		LastActiveTs: now,
		CreatedTs:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetActiveUsers returns one visible presence per display name among
// sessions active within the timeout. A non-positive timeout falls back
// to the profile's presence timeout. Failures degrade to an empty room.
func (s *Store) GetActiveUsers(ctx context.Context, timeout time.Duration) []*ActiveUser {
	if timeout <= 0 {
		if s.profile != nil && s.profile.PresenceTimeout > 0 {
			timeout = s.profile.PresenceTimeout
		} else {
			timeout = 15 * time.Minute
		}
	}
	users, err := s.driver.ListActiveUsers(ctx, time.Now().Add(-timeout))
	if err != nil {
		slog.Error("failed to list active users", "error", err)
		return []*ActiveUser{}
	}
	return users
}

// GetRecentMessages returns the most recent transcript lines across all
// non-archived conversations, in chronological order, rendered as
// ready-to-insert prompt text. Failures degrade to an empty transcript.
func (s *Store) GetRecentMessages(ctx context.Context, limit int) []string {
	if limit <= 0 {
		limit = 5
	}
	messages, err := s.driver.ListRecentMessages(ctx, limit)
	if err != nil {
		slog.Error("failed to list recent messages", "error", err)
		return []string{}
	}

	// The driver returns newest first; the transcript reads oldest first.
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		lines = append(lines, FormatTranscriptLine(messages[i]))
	}
	return lines
}

// GetOrCreateConversation finds the session's current non-archived
// conversation, refreshing its updated timestamp, or creates one lazily.
func (s *Store) GetOrCreateConversation(ctx context.Context, sessionID int32) (*Conversation, error) {
	isArchived := false
	conversations, err := s.driver.ListConversations(ctx, &FindConversation{
		SessionID:  &sessionID,
		IsArchived: &isArchived,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	now := time.Now().Unix()
	if len(conversations) > 0 {
		// Newest first; more than one should not happen under correct use.
		conversation := conversations[0]
		updated, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
			ID:        conversation.ID,
			UpdatedTs: &now,
		})
		if err != nil {
			slog.Warn("failed to refresh conversation", "conversation_id", conversation.ID, "error", err)
			return conversation, nil
		}
		return updated, nil
	}

	conversation, err := s.driver.CreateConversation(ctx, &Conversation{
		UID:       shortuuid.New(),
		SessionID: sessionID,
		Title:     "Conversation " + time.Now().Format("2006-01-02 15:04:05"),
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// SaveMessage appends a message to a conversation. An embedding is
// requested for user messages only; embedding failure does not abort the
// save, the message is simply stored without a vector.
func (s *Store) SaveMessage(ctx context.Context, conversationID int32, content string, messageType MessageType, metadata MessageMetadata) (*Message, error) {
	var embedding []float32
	if messageType == MessageTypeUser && s.embedder != nil {
		vector, err := s.embedder.Embedding(ctx, content)
		if err != nil {
			slog.Warn("embedding generation failed, saving message without vector", "error", err)
		} else {
			embedding = vector
		}
	}

	message, err := s.driver.CreateMessage(ctx, &Message{
		ConversationID: conversationID,
		Content:        content,
		Type:           messageType,
		Metadata:       metadata,
		Embedding:      embedding,
		CreatedTs:      time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return message, nil
}

// SearchSimilarMessages runs a similarity query against stored embeddings.
// Drivers without vector support yield no results.
func (s *Store) SearchSimilarMessages(ctx context.Context, opts *SimilarSearchOptions) ([]*SimilarMessage, error) {
	results, err := s.driver.SearchSimilarMessages(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrVectorSearchUnsupported) {
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}
