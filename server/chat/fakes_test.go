package chat

import (
	"context"
	"sync"

	"github.com/hiroq/techbar/server/hub"
	"github.com/hiroq/techbar/store/teststore"
)

func newFakeDriver() *teststore.Driver {
	return teststore.New()
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

type fakeCompleter struct {
	reply string
	err   error

	mu      sync.Mutex
	prompts []string
}

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *fakeCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []hub.Event
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, event hub.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return 1
}

func (b *fakeBroadcaster) all() []hub.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]hub.Event, len(b.events))
	copy(result, b.events)
	return result
}
