// Package domain defines the core domain models for the agent proxy.
package domain

// SessionState represents where a session is in its chat round-trip.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateStreaming SessionState = "streaming"
	SessionStateError     SessionState = "error"
	SessionStateClosed    SessionState = "closed"
)

// MessageRole tags an entry in a session's message log.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleResult    MessageRole = "result"
)

// ChunkType represents the type of a stream chunk.
type ChunkType string

const (
	ChunkTypeSessionCreated ChunkType = "session_created"
	ChunkTypeTextDelta      ChunkType = "text_delta"
	ChunkTypeMessage        ChunkType = "message" // non-streamed responses
	ChunkTypeToolUse        ChunkType = "tool_use"
	ChunkTypeResult         ChunkType = "result"
	ChunkTypeError          ChunkType = "error"
	ChunkTypeDone           ChunkType = "done"
)

// ToolResultName is the tool_use name used when re-emitting a tool observation.
const ToolResultName = "result"

// Error reasons carried by terminal error chunks.
const (
	ErrorReasonSessionClosed  = "session_closed"
	ErrorReasonSDKUnavailable = "sdk_unavailable"
)
