// Package chat orchestrates the conversation lifecycle: message ingestion,
// persistence, retrieval-augmented prompt assembly, and persona replies.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hiroq/techbar/server/hub"
	"github.com/hiroq/techbar/store"
)

var (
	// ErrSessionUnavailable means session resolution failed; the request
	// is aborted and the error surfaced to the sender only.
	ErrSessionUnavailable = errors.New("session could not be resolved")
	// ErrConversationUnavailable means conversation resolution failed.
	ErrConversationUnavailable = errors.New("conversation could not be resolved")
)

// Broadcaster fans an event out to every live connection.
type Broadcaster interface {
	Broadcast(ctx context.Context, event hub.Event) int
}

// Options are the pacing and sizing knobs of the orchestration.
type Options struct {
	// WelcomeDelay paces the greeting so it does not collide with the
	// join acknowledgment.
	WelcomeDelay time.Duration
	// ReplyDelay biases the persona reply's timestamp to sort after the
	// triggering message on clients.
	ReplyDelay time.Duration
	// PresenceTimeout bounds how stale a session may be and still count
	// as present.
	PresenceTimeout time.Duration
	// RecentLimit is how many transcript lines the prompt embeds.
	RecentLimit int
	// MaxConcurrentReplies bounds in-flight completion calls.
	MaxConcurrentReplies int64
}

// DefaultOptions returns the standard pacing.
func DefaultOptions() Options {
	return Options{
		WelcomeDelay:         time.Second,
		ReplyDelay:           2 * time.Second,
		PresenceTimeout:      15 * time.Minute,
		RecentLimit:          5,
		MaxConcurrentReplies: 4,
	}
}

// Incoming is one chat message received from a client.
type Incoming struct {
	Content     string
	Type        store.MessageType
	SessionKey  string
	DisplayName string
	MessageID   string
}

// Service ties message ingestion to persistence, broadcast, and AI
// response generation.
type Service struct {
	store       *store.Store
	retriever   *Retriever
	completer   Completer
	broadcaster Broadcaster
	opts        Options
	replySem    *semaphore.Weighted
}

// NewService creates the chat orchestrator. A nil completer disables
// persona replies entirely.
func NewService(st *store.Store, retriever *Retriever, completer Completer, broadcaster Broadcaster, opts Options) *Service {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 5
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = 15 * time.Minute
	}
	if opts.MaxConcurrentReplies <= 0 {
		opts.MaxConcurrentReplies = 4
	}
	return &Service{
		store:       st,
		retriever:   retriever,
		completer:   completer,
		broadcaster: broadcaster,
		opts:        opts,
		replySem:    semaphore.NewWeighted(opts.MaxConcurrentReplies),
	}
}

// HandleMessage runs the full per-message sequence: resolve identity,
// persist, broadcast, then generate and deliver the persona reply. The
// user-message broadcast always precedes the persona broadcast for the
// same interaction.
//
// The returned id is the persisted message's identifier; it is empty when
// the save failed, which does not abort real-time delivery.
func (s *Service) HandleMessage(ctx context.Context, in *Incoming) (string, error) {
	session, err := s.store.GetOrCreateSession(ctx, in.SessionKey, in.DisplayName)
	if err != nil {
		slog.Error("session resolution failed", "session_key", in.SessionKey, "error", err)
		return "", ErrSessionUnavailable
	}

	conversation, err := s.store.GetOrCreateConversation(ctx, session.ID)
	if err != nil {
		slog.Error("conversation resolution failed", "session_id", session.ID, "error", err)
		return "", ErrConversationUnavailable
	}

	userTime := time.Now()
	userTimestamp := hub.FormatTimestamp(userTime)

	var savedID string
	saved, err := s.store.SaveMessage(ctx, conversation.ID, in.Content, store.MessageTypeUser, store.MessageMetadata{
		Timestamp:   userTimestamp,
		SessionKey:  in.SessionKey,
		DisplayName: in.DisplayName,
		MessageID:   in.MessageID,
	})
	if err != nil {
		// Persistence is not a precondition for real-time delivery.
		slog.Error("failed to persist user message", "conversation_id", conversation.ID, "error", err)
	} else {
		savedID = strconv.Itoa(int(saved.ID))
	}

	s.broadcaster.Broadcast(ctx, hub.Event{
		Type:        hub.EventTypeMessage,
		Content:     in.Content,
		DisplayName: in.DisplayName,
		MessageID:   in.MessageID,
		Timestamp:   userTimestamp,
		System:      false,
	})

	if in.Type == store.MessageTypeUser && s.completer != nil {
		s.generateReply(ctx, conversation.ID, in)
	}

	return savedID, nil
}

// generateReply builds the persona context, requests a completion, and on
// success persists and broadcasts the reply. Every failure degrades to
// silence; the persona simply does not speak.
func (s *Service) generateReply(ctx context.Context, conversationID int32, in *Incoming) {
	if err := s.replySem.Acquire(ctx, 1); err != nil {
		slog.Warn("persona reply cancelled before start", "error", err)
		return
	}
	defer s.replySem.Release(1)

	users := s.store.GetActiveUsers(ctx, s.opts.PresenceTimeout)
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, user.DisplayName)
	}

	prompt := BuildPrompt(in.Content, in.DisplayName, PromptContext{
		CurrentUsers:   names,
		RecentMessages: s.store.GetRecentMessages(ctx, s.opts.RecentLimit),
		SimilarContext: s.retriever.FindSimilarContext(ctx, in.Content, in.DisplayName),
	})

	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		slog.Warn("completion failed, persona stays silent", "error", err)
		return
	}
	if reply == "" {
		return
	}
	if IsSuppressed(reply) {
		slog.Debug("persona chose to stay silent", "conversation_id", conversationID)
		return
	}

	replyID := fmt.Sprintf("master_%s", uuid.New().String())
	replyTimestamp := hub.FormatTimestamp(time.Now().Add(s.opts.ReplyDelay))

	if _, err := s.store.SaveMessage(ctx, conversationID, reply, store.MessageTypeSystem, store.MessageMetadata{
		Timestamp:   replyTimestamp,
		SessionKey:  "master",
		DisplayName: store.PersonaDisplayName,
		MessageID:   replyID,
	}); err != nil {
		// A lost transcript row does not mute the live reply.
		slog.Error("failed to persist persona reply", "conversation_id", conversationID, "error", err)
	}

	s.broadcaster.Broadcast(ctx, hub.Event{
		Type:        hub.EventTypeMessage,
		Content:     reply,
		DisplayName: store.PersonaDisplayName,
		MessageID:   replyID,
		Timestamp:   replyTimestamp,
		System:      false,
	})
}

// HandleWelcome greets a patron who just joined. The greeting is paced by
// WelcomeDelay, mentions how many other patrons are present, and is
// broadcast only: it is ephemeral and never enters the transcript.
func (s *Service) HandleWelcome(ctx context.Context, sessionKey, displayName string) {
	select {
	case <-time.After(s.opts.WelcomeDelay):
	case <-ctx.Done():
		slog.Debug("welcome greeting cancelled", "session_key", sessionKey)
		return
	}

	users := s.store.GetActiveUsers(ctx, s.opts.PresenceTimeout)
	others := 0
	for _, user := range users {
		if user.DisplayName != displayName {
			others++
		}
	}

	greeting := fmt.Sprintf("いらっしゃいませ、%sさん。", displayName)
	if others > 0 {
		greeting += fmt.Sprintf("\n今夜は%d名のお客様がいらっしゃいます。", others)
	}
	greeting += "\nごゆっくりおくつろぎください。"

	slog.Info("welcoming patron", "session_key", sessionKey, "display_name", displayName, "others", others)
	s.broadcaster.Broadcast(ctx, hub.Event{
		Type:        hub.EventTypeMessage,
		Content:     greeting,
		DisplayName: store.PersonaDisplayName,
		MessageID:   fmt.Sprintf("master_%s", uuid.New().String()),
		Timestamp:   hub.FormatTimestamp(time.Now()),
		System:      false,
	})
}
