package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) Write(ctx context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) lastWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return c.writes[len(c.writes)-1]
}

func TestBroadcast_DeliversIdenticalPayloadToAll(t *testing.T) {
	h := New()
	alice := &fakeConn{}
	bob := &fakeConn{}
	h.Register("alice-key", alice)
	h.Register("bob-key", bob)

	event := Event{
		Type:        EventTypeMessage,
		Content:     "こんばんは",
		DisplayName: "Alice",
		MessageID:   "m1",
		Timestamp:   "2026-09-01T22:15:04.120Z",
	}
	delivered := h.Broadcast(context.Background(), event)

	assert.Equal(t, 2, delivered)
	require.NotNil(t, alice.lastWrite())
	assert.Equal(t, alice.lastWrite(), bob.lastWrite())

	var decoded Event
	require.NoError(t, json.Unmarshal(alice.lastWrite(), &decoded))
	assert.Equal(t, event, decoded)
}

func TestBroadcast_FailedSendSkipsOnlyThatConnection(t *testing.T) {
	h := New()
	healthy1 := &fakeConn{}
	broken := &fakeConn{writeErr: errors.New("write: broken pipe")}
	healthy2 := &fakeConn{}
	h.Register("k1", healthy1)
	h.Register("k2", broken)
	h.Register("k3", healthy2)

	delivered := h.Broadcast(context.Background(), Event{Type: EventTypeMessage, Content: "hi"})

	assert.Equal(t, 2, delivered)
	assert.Len(t, healthy1.writes, 1)
	assert.Len(t, healthy2.writes, 1)
	// A failed write does not evict the connection.
	assert.Equal(t, 3, h.Count())
}

func TestRegister_ReplacesAndClosesPrior(t *testing.T) {
	h := New()
	old := &fakeConn{}
	replacement := &fakeConn{}

	h.Register("key", old)
	h.Register("key", replacement)

	assert.Equal(t, 1, h.Count())
	assert.True(t, old.closed)
	assert.False(t, replacement.closed)

	h.Broadcast(context.Background(), Event{Type: EventTypeMessage, Content: "only to the new one"})
	assert.Empty(t, old.writes)
	assert.Len(t, replacement.writes, 1)
}

func TestUnregister_IgnoresStaleConnection(t *testing.T) {
	h := New()
	old := &fakeConn{}
	replacement := &fakeConn{}

	h.Register("key", old)
	h.Register("key", replacement)

	// The replaced connection's deferred cleanup must not evict its
	// successor.
	h.Unregister("key", old)
	assert.Equal(t, 1, h.Count())

	h.Unregister("key", replacement)
	assert.Equal(t, 0, h.Count())
}

func TestBroadcast_EmptyHub(t *testing.T) {
	h := New()
	assert.Equal(t, 0, h.Broadcast(context.Background(), Event{Type: EventTypeMessage}))
}

func TestHub_ConcurrentRegisterAndBroadcast(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		key := string(rune('a' + i))
		go func() {
			defer wg.Done()
			conn := &fakeConn{}
			h.Register(key, conn)
			h.Unregister(key, conn)
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(context.Background(), Event{Type: EventTypeMessage, Content: "ping"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count())
}

func TestFormatTimestamp(t *testing.T) {
	local, err := time.Parse(time.RFC3339, "2026-09-01T13:04:05.120+09:00")
	require.NoError(t, err)

	assert.Equal(t, "2026-09-01T04:04:05.120Z", FormatTimestamp(local))

	// Whole-second times keep explicit zero milliseconds.
	exact, err := time.Parse(time.RFC3339, "2026-09-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-01T00:00:00.000Z", FormatTimestamp(exact))
}
