package domain

import (
	"encoding/json"
	"time"
)

// Usage represents token usage reported by the SDK for one round-trip.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// Chunk is one record of the SSE stream sent to a chat client.
// Only the fields relevant to Type are set.
type Chunk struct {
	Type       ChunkType       `json:"type"`
	SessionID  string          `json:"session_id,omitempty"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Usage      *Usage          `json:"usage,omitempty"`
	Cost       *float64        `json:"cost,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// IsTerminal reports whether no chunk may follow this one.
func (c Chunk) IsTerminal() bool {
	return c.Type == ChunkTypeDone
}

func NewSessionCreatedChunk(sessionID string) Chunk {
	return Chunk{Type: ChunkTypeSessionCreated, SessionID: sessionID}
}

func NewTextDeltaChunk(text string) Chunk {
	return Chunk{Type: ChunkTypeTextDelta, Content: text}
}

func NewMessageChunk(text string) Chunk {
	return Chunk{Type: ChunkTypeMessage, Content: text}
}

// NewToolUseChunk builds a tool_use chunk. A nil input is sent as an empty object.
func NewToolUseChunk(name string, input json.RawMessage) Chunk {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return Chunk{Type: ChunkTypeToolUse, Name: name, Input: input}
}

func NewResultChunk(sessionID string, usage *Usage, cost *float64, stopReason string) Chunk {
	return Chunk{Type: ChunkTypeResult, SessionID: sessionID, Usage: usage, Cost: cost, StopReason: stopReason}
}

func NewErrorChunk(message string) Chunk {
	return Chunk{Type: ChunkTypeError, Error: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func NewDoneChunk(sessionID string) Chunk {
	return Chunk{Type: ChunkTypeDone, SessionID: sessionID}
}
