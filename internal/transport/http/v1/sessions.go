package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// CreateSession creates a session with an optional config.
// POST /api/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	cfg, err := domain.DecodeSessionConfig(req.Config)
	if err != nil {
		return errorJSON(c, err)
	}

	sess, err := h.service.CreateSession(c.Request().Context(), req.ProjectID, cfg)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, domain.CreateSessionResponse{
		SessionID: sess.ID(),
		ProjectID: sess.ProjectID(),
		Status:    domain.SessionStatusCreated,
		Timestamp: sess.CreatedAt(),
	})
}

// ListSessions lists live sessions, oldest first.
// GET /api/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions := h.service.ListSessions()
	return c.JSON(http.StatusOK, domain.ListSessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// GetSession returns one session with its state and config.
// GET /api/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	detail, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// DeleteSession closes a session.
// DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.service.DeleteSession(id); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, domain.DeleteSessionResponse{
		SessionID: id,
		Status:    domain.SessionStatusDeleted,
		Timestamp: time.Now().UTC(),
	})
}

// GetSessionMessages returns the message log of a session.
// GET /api/sessions/:id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	id := c.Param("id")
	messages, err := h.service.Messages(id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, domain.MessagesResponse{SessionID: id, Messages: messages})
}
