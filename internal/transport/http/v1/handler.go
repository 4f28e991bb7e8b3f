// Package v1 provides the HTTP handlers of the agent proxy API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/tmaxmax/go-sse"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	upgrader websocket.Upgrader
	// upgrade starts the SSE response of a chat.
	upgrade func(w http.ResponseWriter, r *http.Request) (*sse.Session, error)
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local developer tool: any origin may watch
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		upgrade: sse.Upgrade,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	api.GET("/health", h.Health)
	api.GET("/sdk-status", h.SDKStatus)

	api.POST("/chat", h.Chat)

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.GET("/sessions/:id/messages", h.GetSessionMessages)
	api.GET("/sessions/:id/watch", h.WatchSession)

	api.GET("/flow/balance", h.GetBalance)
	api.GET("/flow/balance/:address", h.GetBalance)
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSDKUnavailable),
		errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorJSON writes err as {error, details?}. Unclassified errors are logged
// and reported with a generic message.
func errorJSON(c echo.Context, err error) error {
	status := statusFor(err)
	resp := domain.ErrorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "uri", c.Request().RequestURI, "error", err)
		resp.Error = "internal server error"
	}
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		resp.Details = cfgErr.Reasons
	}
	return c.JSON(status, resp)
}
