package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// ScriptFunc produces the events a mock conversation emits for a prompt.
type ScriptFunc func(prompt string) []Event

// MockBackend is a deterministic in-process backend used for tests and for
// running the proxy without credentials.
type MockBackend struct {
	// Script overrides the default echo reply.
	Script ScriptFunc
	// Delay is slept before each event to pace emission.
	Delay time.Duration
	// Unavailable makes Status report the SDK as down and Open fail.
	Unavailable bool

	mu      sync.Mutex
	opened  int
	closed  int
	resumes []ResumeState
}

// Ensure MockBackend implements Backend interface.
var _ Backend = (*MockBackend)(nil)

// NewMockBackend creates a mock backend with the default echo script.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Status(ctx context.Context) Status {
	return Status{
		Available: !m.Unavailable,
		Info:      map[string]string{"backend": "mock", "mode": "MOCK"},
	}
}

func (m *MockBackend) Open(ctx context.Context, cfg domain.SessionConfig) (Conversation, error) {
	if m.Unavailable {
		return nil, fmt.Errorf("mock backend: %w", domain.ErrSDKUnavailable)
	}
	m.mu.Lock()
	m.opened++
	id := fmt.Sprintf("mock-session-%d", m.opened)
	m.mu.Unlock()
	return &mockConversation{backend: m, cfg: cfg, id: id}, nil
}

// Resume opens a handle that keeps state.SDKSessionID.
func (m *MockBackend) Resume(ctx context.Context, cfg domain.SessionConfig, state ResumeState) (Conversation, error) {
	conv, err := m.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if state.SDKSessionID == "" && len(state.History) == 0 {
		return conv, nil
	}
	m.mu.Lock()
	m.resumes = append(m.resumes, state)
	m.mu.Unlock()
	if state.SDKSessionID != "" {
		conv.(*mockConversation).id = state.SDKSessionID
	}
	return conv, nil
}

// Resumes returns the non-empty states passed to Resume, in order.
func (m *MockBackend) Resumes() []ResumeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResumeState(nil), m.resumes...)
}

// Handles returns how many handles were opened and closed.
func (m *MockBackend) Handles() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.closed
}

type mockConversation struct {
	backend *MockBackend
	cfg     domain.SessionConfig
	id      string

	mu      sync.Mutex
	prompts []string
	closed  bool
}

func (c *mockConversation) Send(ctx context.Context, prompt string, cb EventCallback) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("mock conversation closed")
	}
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()

	script := c.backend.Script
	if script == nil {
		script = c.defaultScript
	}

	for _, ev := range script(prompt) {
		if c.backend.Delay > 0 {
			timer := time.NewTimer(c.backend.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := cb(ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *mockConversation) SDKSessionID() string { return c.id }

func (c *mockConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.backend.mu.Lock()
	c.backend.closed++
	c.backend.mu.Unlock()
	return nil
}

// defaultScript echoes the prompt back in small fragments.
func (c *mockConversation) defaultScript(prompt string) []Event {
	reply := fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(prompt, 100))
	var events []Event
	for _, part := range splitIntoChunks(reply, 10) {
		events = append(events, TextDelta(part))
	}
	usage := &domain.Usage{
		InputTokens:  int64(len(prompt) / 4),
		OutputTokens: int64(len(reply) / 4),
	}
	cost := 0.0
	return append(events, Result(usage, &cost, "end_turn"))
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}

	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
