package domain

import (
	"encoding/json"
	"time"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	ProjectID string          `json:"project_id,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// CreateSessionResponse is returned by POST /api/sessions.
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ListSessionsResponse is returned by GET /api/sessions.
type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// DeleteSessionResponse is returned by DELETE /api/sessions/{id}.
type DeleteSessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagesResponse is returned by GET /api/sessions/{id}/messages.
type MessagesResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	SDKAvailable   bool      `json:"sdk_available"`
	SessionsActive int       `json:"sessions_active"`
}

// SDKStatusResponse is returned by GET /api/sdk-status.
type SDKStatusResponse struct {
	SDKAvailable   bool              `json:"sdk_available"`
	Info           map[string]string `json:"info"`
	HandlerStatus  string            `json:"handler_status"`
	SessionsActive int               `json:"sessions_active"`
	Timestamp      time.Time         `json:"timestamp"`
}

// ErrorResponse is the JSON body of every non-streaming error.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// Session statuses reported by the session endpoints.
const (
	SessionStatusCreated = "created"
	SessionStatusDeleted = "deleted"
)
