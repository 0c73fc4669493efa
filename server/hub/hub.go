// Package hub tracks live client connections and fans out serialized
// events to all of them.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Conn is the transport half the hub needs from a live connection.
type Conn interface {
	Write(ctx context.Context, p []byte) error
	Close(reason string) error
}

// Hub is the in-memory connection registry, keyed by session key. At most
// one live connection exists per key; registering a new one replaces the
// prior entry. The registry is presence-tracking only and is lost on
// restart.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		conns: make(map[string]Conn),
	}
}

// Register inserts or replaces the connection for a session key. A
// replaced connection is closed; it is assumed already dead or dying.
func (h *Hub) Register(sessionKey string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.conns[sessionKey]; ok && existing != conn {
		_ = existing.Close("connection replaced")
	}
	h.conns[sessionKey] = conn
	slog.Info("connection registered", "session_key", sessionKey)
}

// Unregister removes the connection for a session key. It is a no-op if
// the key is absent or a different connection has since taken the slot.
func (h *Hub) Unregister(sessionKey string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.conns[sessionKey]; ok && current == conn {
		delete(h.conns, sessionKey)
		slog.Info("connection unregistered", "session_key", sessionKey)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast serializes the event once and attempts delivery to every
// registered connection. A failed send is logged and skipped; it never
// aborts delivery to the rest and never removes the connection, whose own
// lifecycle is responsible for unregistering. Returns the number of
// successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, event Event) int {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to serialize broadcast event", "error", err)
		return 0
	}

	// Snapshot under the read lock so slow writes do not block
	// registration, then deliver outside it.
	h.mu.RLock()
	targets := make(map[string]Conn, len(h.conns))
	for sessionKey, conn := range h.conns {
		targets[sessionKey] = conn
	}
	h.mu.RUnlock()

	delivered := 0
	for sessionKey, conn := range targets {
		if err := conn.Write(ctx, payload); err != nil {
			slog.Warn("failed to deliver event", "session_key", sessionKey, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
