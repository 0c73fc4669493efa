package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hiroq/techbar/server/chat"
	"github.com/hiroq/techbar/store"
)

// SendMessageRequest is one chat message submitted over REST.
type SendMessageRequest struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	SessionKey  string `json:"session_key"`
	DisplayName string `json:"display_name"`
	MessageID   string `json:"message_id,omitempty"`
}

type SendMessageResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
}

// SendMessage ingests a chat message.
// POST /api/chat/message
func (s *APIV1Service) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if req.Content == "" || req.SessionKey == "" || req.DisplayName == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "content, session_key and display_name are required")
	}
	if req.Type != string(store.MessageTypeUser) && req.Type != string(store.MessageTypeSystem) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "type must be 'user' or 'system'")
	}

	if !s.limiter.Allow(req.SessionKey) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
	}

	messageID, err := s.Chat.HandleMessage(c.Request().Context(), &chat.Incoming{
		Content:     req.Content,
		Type:        store.MessageType(req.Type),
		SessionKey:  req.SessionKey,
		DisplayName: req.DisplayName,
		MessageID:   req.MessageID,
	})
	if err != nil {
		if errors.Is(err, chat.ErrSessionUnavailable) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message")
	}

	return c.JSON(http.StatusOK, SendMessageResponse{
		Status:    "success",
		MessageID: messageID,
	})
}

// EnterRequest announces a patron entering the bar.
type EnterRequest struct {
	SessionKey  string `json:"session_key"`
	DisplayName string `json:"display_name"`
}

type ActiveUserView struct {
	DisplayName string `json:"display_name"`
	LastActive  string `json:"last_active"`
	SessionKey  string `json:"session_key"`
}

type EnterResponse struct {
	Status      string           `json:"status"`
	SessionID   string           `json:"session_id"`
	ActiveUsers []ActiveUserView `json:"active_users"`
}

// EnterBar resolves the patron's session and reports who is present.
// POST /api/users/enter
func (s *APIV1Service) EnterBar(c echo.Context) error {
	var req EnterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if req.SessionKey == "" || req.DisplayName == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "session_key and display_name are required")
	}

	session, err := s.Store.GetOrCreateSession(c.Request().Context(), req.SessionKey, req.DisplayName)
	if err != nil {
		slog.Error("failed to resolve session on enter", "session_key", req.SessionKey, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}

	users := s.Store.GetActiveUsers(c.Request().Context(), s.Profile.PresenceTimeout)
	return c.JSON(http.StatusOK, EnterResponse{
		Status:      "success",
		SessionID:   session.UID,
		ActiveUsers: toActiveUserViews(users),
	})
}

type ActiveUsersResponse struct {
	Users []ActiveUserView `json:"users"`
}

// GetActiveUsers reports the current visible presences.
// GET /api/users/active
func (s *APIV1Service) GetActiveUsers(c echo.Context) error {
	users := s.Store.GetActiveUsers(c.Request().Context(), s.Profile.PresenceTimeout)
	return c.JSON(http.StatusOK, ActiveUsersResponse{Users: toActiveUserViews(users)})
}

func toActiveUserViews(users []*store.ActiveUser) []ActiveUserView {
	views := make([]ActiveUserView, 0, len(users))
	for _, user := range users {
		views = append(views, ActiveUserView{
			DisplayName: user.DisplayName,
			LastActive:  user.LastActive.Format(time.RFC3339),
			SessionKey:  user.SessionKey,
		})
	}
	return views
}
