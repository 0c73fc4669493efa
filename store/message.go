package store

import (
	"fmt"
	"time"
)

// PersonaDisplayName is the bartender's display name as rendered in
// transcripts and broadcast events.
const PersonaDisplayName = "マスター"

type MessageType string

const (
	// MessageTypeUser is an utterance by a patron.
	MessageTypeUser MessageType = "user"
	// MessageTypeSystem is a reply by the bartender persona.
	MessageTypeSystem MessageType = "system"
)

// MessageMetadata is the free-form payload stored alongside a message.
// Persisted as a JSON column.
type MessageMetadata struct {
	Timestamp   string `json:"timestamp,omitempty"`
	SessionKey  string `json:"session_key,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

// Message is one utterance in a conversation. Messages are append-only,
// never mutated or deleted.
type Message struct {
	ID             int32
	ConversationID int32
	Content        string
	Type           MessageType
	Metadata       MessageMetadata
	// SequenceNum is strictly increasing and unique within a conversation.
	SequenceNum int32
	// Embedding is present only for user messages whose embedding
	// generation succeeded.
	Embedding []float32
	CreatedTs int64
}

// SimilarMessage is one vector-search hit with its cosine similarity score.
type SimilarMessage struct {
	Content     string
	DisplayName string
	Similarity  float32
}

// SimilarSearchOptions controls the similarity query against stored
// message embeddings.
type SimilarSearchOptions struct {
	Embedding []float32
	// Threshold is the minimum cosine similarity for a hit.
	Threshold float32
	// MaxPerAuthor caps hits per distinct author so one prolific patron
	// cannot crowd out diverse context.
	MaxPerAuthor int
	// CreatedBefore excludes messages newer than this instant, guarding
	// against a message recalling itself before indexing settles.
	CreatedBefore time.Time
}

// FormatTranscriptLine renders a message as ready-to-insert transcript
// text. Downstream prompt assembly relies on this exact shape.
func FormatTranscriptLine(m *Message) string {
	if m.Type == MessageTypeSystem {
		return fmt.Sprintf("%s: %s", PersonaDisplayName, m.Content)
	}
	return fmt.Sprintf("%sさん: %s", m.Metadata.DisplayName, m.Content)
}
