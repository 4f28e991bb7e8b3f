package sdk

import (
	"encoding/json"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// EventKind tags an Event.
type EventKind int

const (
	EventTextDelta EventKind = iota + 1
	EventMessage
	EventToolUse
	EventToolResult
	EventResult
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text_delta"
	case EventMessage:
		return "message"
	case EventToolUse:
		return "tool_use"
	case EventToolResult:
		return "tool_result"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a normalized SDK event. Which fields are set depends on Kind.
type Event struct {
	Kind EventKind

	// EventTextDelta and EventMessage
	Text string

	// EventToolUse and EventToolResult
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// EventResult
	Usage        *domain.Usage
	CostUSD      *float64
	StopReason   string
	SDKSessionID string

	// EventError
	Message string
}

func TextDelta(text string) Event {
	return Event{Kind: EventTextDelta, Text: text}
}

// FullMessage is a complete text block from a backend that does not stream.
func FullMessage(text string) Event {
	return Event{Kind: EventMessage, Text: text}
}

func ToolUse(id, name string, input json.RawMessage) Event {
	return Event{Kind: EventToolUse, ToolID: id, ToolName: name, ToolInput: input}
}

func ToolResult(toolUseID string, content json.RawMessage) Event {
	return Event{Kind: EventToolResult, ToolID: toolUseID, ToolInput: content}
}

func Result(usage *domain.Usage, cost *float64, stopReason string) Event {
	return Event{Kind: EventResult, Usage: usage, CostUSD: cost, StopReason: stopReason}
}

func Failure(message string) Event {
	return Event{Kind: EventError, Message: message}
}

// Chunk translates the event into the chunk sent to the client.
// Tool observations are re-emitted as tool_use chunks named "result".
func (e Event) Chunk(sessionID string) domain.Chunk {
	switch e.Kind {
	case EventTextDelta:
		return domain.NewTextDeltaChunk(e.Text)
	case EventMessage:
		return domain.NewMessageChunk(e.Text)
	case EventToolUse:
		return domain.NewToolUseChunk(e.ToolName, e.ToolInput)
	case EventToolResult:
		return domain.NewToolUseChunk(domain.ToolResultName, toolResultInput(e))
	case EventResult:
		return domain.NewResultChunk(sessionID, e.Usage, e.CostUSD, e.StopReason)
	default:
		return domain.NewErrorChunk(e.Message)
	}
}

func toolResultInput(e Event) json.RawMessage {
	content := e.ToolInput
	if len(content) == 0 {
		content = json.RawMessage(`null`)
	}
	payload, err := json.Marshal(map[string]json.RawMessage{
		"tool_use_id": mustJSON(e.ToolID),
		"content":     content,
	})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return payload
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
