package v1

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
)

// joinFrame is the only client-to-server frame carried over the stream;
// chat messages travel over REST.
type joinFrame struct {
	Type        string `json:"type"`
	SessionKey  string `json:"session_key"`
	DisplayName string `json:"display_name"`
}

// wsConn adapts a websocket connection to the hub's transport interface.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Write(ctx context.Context, p []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, p)
}

func (w *wsConn) Close(reason string) error {
	return w.conn.Close(websocket.StatusNormalClosure, reason)
}

// HandleWebSocket upgrades the connection, registers it in the hub, and
// reads frames until the client goes away. Frame processing never blocks
// the read loop; the welcome sequence runs on its own goroutine.
// GET /ws/:sessionKey
func (s *APIV1Service) HandleWebSocket(c echo.Context) error {
	sessionKey := c.Param("sessionKey")
	slog.Info("websocket connection request", "session_key", sessionKey, "ip", c.RealIP())

	ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "session_key", sessionKey, "error", err)
		return nil
	}

	conn := &wsConn{conn: ws}
	s.Hub.Register(sessionKey, conn)
	defer func() {
		s.Hub.Unregister(sessionKey, conn)
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
		slog.Info("websocket connection closed", "session_key", sessionKey)
	}()

	ctx := c.Request().Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("websocket closed by client", "session_key", sessionKey)
			} else {
				slog.Warn("websocket read error", "session_key", sessionKey, "error", err)
			}
			return nil
		}

		var frame joinFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid websocket frame", "session_key", sessionKey, "error", err)
			continue
		}

		if frame.Type == "welcome" {
			// Detached from the request context: the greeting targets
			// the whole room and outlives this connection if need be.
			go s.Chat.HandleWelcome(context.Background(), frame.SessionKey, frame.DisplayName)
		}
	}
}
