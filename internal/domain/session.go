package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// SessionConfig is the configuration snapshot frozen at session creation.
type SessionConfig struct {
	Model        string                     `json:"model,omitempty"`
	Temperature  *float64                   `json:"temperature,omitempty"`
	SystemPrompt string                     `json:"system_prompt,omitempty"`
	MaxTokens    *int                       `json:"max_tokens,omitempty"`
	AllowedTools []string                   `json:"allowed_tools,omitempty"`
	MCPServers   map[string]json.RawMessage `json:"mcp_servers,omitempty"`
	MaxTurns     int                        `json:"max_turns,omitempty"`
}

// DecodeSessionConfig decodes a config object, rejecting unknown fields.
func DecodeSessionConfig(raw json.RawMessage) (SessionConfig, error) {
	var cfg SessionConfig
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return SessionConfig{}, NewConfigError(err.Error())
	}
	return cfg, nil
}

// Validate checks the structural constraints of a config.
func (c SessionConfig) Validate() error {
	var reasons []string
	if c.Model == "" {
		reasons = append(reasons, "model is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		reasons = append(reasons, fmt.Sprintf("temperature %.2f outside [0,2]", *c.Temperature))
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		reasons = append(reasons, "max_tokens must be positive")
	}
	if c.MaxTurns < 0 {
		reasons = append(reasons, "max_turns must not be negative")
	}
	if len(reasons) > 0 {
		return NewConfigError(reasons...)
	}
	return nil
}

// WithDefaults fills every unset field from def and returns a detached copy.
func (c SessionConfig) WithDefaults(def SessionConfig) SessionConfig {
	out := c.Clone()
	if out.Model == "" {
		out.Model = def.Model
	}
	if out.Temperature == nil && def.Temperature != nil {
		t := *def.Temperature
		out.Temperature = &t
	}
	if out.SystemPrompt == "" {
		out.SystemPrompt = def.SystemPrompt
	}
	if out.MaxTokens == nil && def.MaxTokens != nil {
		m := *def.MaxTokens
		out.MaxTokens = &m
	}
	if out.AllowedTools == nil {
		out.AllowedTools = slices.Clone(def.AllowedTools)
	}
	if out.MCPServers == nil && def.MCPServers != nil {
		out.MCPServers = cloneServers(def.MCPServers)
	}
	if out.MaxTurns == 0 {
		out.MaxTurns = def.MaxTurns
	}
	return out
}

// Clone returns a deep copy so that the snapshot cannot be mutated through shared slices or maps.
func (c SessionConfig) Clone() SessionConfig {
	out := c
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	if c.MaxTokens != nil {
		m := *c.MaxTokens
		out.MaxTokens = &m
	}
	out.AllowedTools = slices.Clone(c.AllowedTools)
	out.MCPServers = cloneServers(c.MCPServers)
	return out
}

func cloneServers(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// Message represents a single entry in a session's message log.
type Message struct {
	Index     int             `json:"index"`
	SessionID string          `json:"session_id"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Blocks    json.RawMessage `json:"blocks,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SessionSummary is the list-snapshot view of a session.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	ProjectID     string    `json:"project_id"`
	CreatedAt     time.Time `json:"created_at"`
	MessagesCount int       `json:"messages_count"`
}

// SessionDetail is the single-session view.
type SessionDetail struct {
	SessionSummary
	State        SessionState  `json:"state"`
	LastActivity time.Time     `json:"last_activity"`
	Config       SessionConfig `json:"config"`
}
