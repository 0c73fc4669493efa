package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hiroq/techbar/internal/profile"
	"github.com/hiroq/techbar/server/chat"
	"github.com/hiroq/techbar/server/hub"
	"github.com/hiroq/techbar/server/middleware"
	"github.com/hiroq/techbar/store"
)

// APIV1Service wires the chat endpoints onto an Echo instance.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Chat    *chat.Service
	Hub     *hub.Hub

	limiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, chatService *chat.Service, connectionHub *hub.Hub) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Chat:    chatService,
		Hub:     connectionHub,
		limiter: middleware.NewRateLimiter(),
	}
}

// RegisterRoutes registers the REST and websocket endpoints.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/chat/message", s.SendMessage)
	e.POST("/api/users/enter", s.EnterBar)
	e.GET("/api/users/active", s.GetActiveUsers)
	e.GET("/ws/:sessionKey", s.HandleWebSocket)
}
