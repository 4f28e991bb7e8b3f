package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tmaxmax/go-sse"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Chat streams one chat round-trip as Server-Sent Events.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return c.JSON(http.StatusUnprocessableEntity, domain.ErrorResponse{
				Error: "message must be a non-empty string",
			})
		}
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusUnprocessableEntity, domain.ErrorResponse{
			Error:   domain.ErrEmptyMessage.Error(),
			Details: []string{"message must be a non-empty string"},
		})
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	turn, err := h.service.OpenChat(ctx, req)
	if err != nil {
		return errorJSON(c, err)
	}

	sess, err := h.upgrade(c.Response(), c.Request())
	if err != nil {
		if turn.Created {
			_ = h.service.DeleteSession(turn.Session.ID())
		}
		return errorJSON(c, err)
	}

	w := &sseChunkWriter{
		sess:     sess,
		cancel:   cancel,
		deadline: http.NewResponseController(c.Response()),
	}
	if err := h.service.Chat(ctx, turn, w); err != nil {
		slog.Debug("chat stream ended early", "session_id", turn.Session.ID(), "error", err)
	}
	return nil
}

// chunkWriteTimeout bounds a single chunk write to a client that stopped reading.
const chunkWriteTimeout = 30 * time.Second

// sseChunkWriter frames each chunk as a single data event and flushes it.
// A failed write means the client is gone and cancels the request.
type sseChunkWriter struct {
	sess     *sse.Session
	cancel   context.CancelFunc
	deadline *http.ResponseController
}

func (w *sseChunkWriter) WriteChunk(chunk domain.Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if w.deadline != nil {
		// not every ResponseWriter supports deadlines; those writes stay unbounded
		_ = w.deadline.SetWriteDeadline(time.Now().Add(chunkWriteTimeout))
	}
	msg := &sse.Message{}
	msg.AppendData(string(payload))
	if err := w.sess.Send(msg); err != nil {
		w.cancel()
		return err
	}
	if err := w.sess.Flush(); err != nil {
		w.cancel()
		return err
	}
	return nil
}
