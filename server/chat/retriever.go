package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hiroq/techbar/store"
)

// Embedder generates an embedding vector for a text.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Completer generates a completion for an assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	defaultSimilarityThreshold = 0.8
	defaultMaxPerAuthor        = 3
	// defaultRecencyExclusion guards against a message recalling itself
	// or its immediate predecessor before indexing settles.
	defaultRecencyExclusion = 5 * time.Second
)

// Retriever finds semantically related past messages for a new utterance,
// partitioned by author so one prolific patron cannot crowd out diverse
// context.
type Retriever struct {
	store    *store.Store
	embedder Embedder

	Threshold        float32
	MaxPerAuthor     int
	RecencyExclusion time.Duration
}

// NewRetriever creates a retriever with default tuning.
func NewRetriever(st *store.Store, embedder Embedder) *Retriever {
	return &Retriever{
		store:            st,
		embedder:         embedder,
		Threshold:        defaultSimilarityThreshold,
		MaxPerAuthor:     defaultMaxPerAuthor,
		RecencyExclusion: defaultRecencyExclusion,
	}
}

// FindSimilarContext returns a rendered context block of related prior
// remarks, the asking patron's own first, then other patrons'. An empty
// string means "omit this section" and is never an error.
func (r *Retriever) FindSimilarContext(ctx context.Context, content, displayName string) string {
	if r.embedder == nil {
		return ""
	}

	embedding, err := r.embedder.Embedding(ctx, content)
	if err != nil {
		slog.Warn("embedding for similarity lookup failed", "error", err)
		return ""
	}

	results, err := r.store.SearchSimilarMessages(ctx, &store.SimilarSearchOptions{
		Embedding:     embedding,
		Threshold:     r.Threshold,
		MaxPerAuthor:  r.MaxPerAuthor,
		CreatedBefore: time.Now().Add(-r.RecencyExclusion),
	})
	if err != nil {
		slog.Warn("similarity search failed", "error", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	var own, others []*store.SimilarMessage
	for _, result := range results {
		if result.DisplayName == displayName {
			own = append(own, result)
		} else {
			others = append(others, result)
		}
	}

	var parts []string
	if len(own) > 0 {
		parts = append(parts, "\n以前の関連する会話:")
		for _, msg := range own {
			parts = append(parts, msg.DisplayName+"さん: "+msg.Content)
		}
	}
	if len(others) > 0 {
		parts = append(parts, "\n他のお客様との関連する会話:")
		for _, msg := range others {
			parts = append(parts, msg.DisplayName+"さん: "+msg.Content)
		}
	}

	return strings.Join(parts, "\n")
}
