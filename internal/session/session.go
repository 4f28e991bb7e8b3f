// Package session tracks live chat sessions and their SDK handles.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Opener opens an SDK handle with the session's frozen config. A zero state
// starts a new conversation.
type Opener func(ctx context.Context, cfg domain.SessionConfig, state sdk.ResumeState) (sdk.Conversation, error)

// Session is a registered conversation. The id, project, creation time and
// config never change; the message log only grows.
type Session struct {
	id        string
	projectID string
	createdAt time.Time
	config    domain.SessionConfig
	open      Opener

	// turn is held by the single in-flight chat request.
	turn chan struct{}

	mu           sync.Mutex
	messages     []domain.Message
	lastActivity time.Time
	state        domain.SessionState
	conv         sdk.Conversation
	// resume is captured when conv is released so the next handle continues.
	resume sdk.ResumeState

	// emitMu orders chunk writes against Close.
	emitMu sync.Mutex
	closed bool
	done   chan struct{}
}

func newSession(id, projectID string, cfg domain.SessionConfig, conv sdk.Conversation, open Opener, now time.Time) *Session {
	return &Session{
		id:           id,
		projectID:    projectID,
		createdAt:    now,
		config:       cfg.Clone(),
		open:         open,
		turn:         make(chan struct{}, 1),
		lastActivity: now,
		state:        domain.SessionStateIdle,
		conv:         conv,
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) ProjectID() string    { return s.projectID }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Config returns a copy of the frozen configuration.
func (s *Session) Config() domain.SessionConfig {
	return s.config.Clone()
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	return s.closed
}

// Acquire waits for the session's turn. Requests on the same session run one
// at a time; a waiting request gives up when ctx ends or the session closes.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return domain.ErrSessionClosed
	}
	if s.Closed() {
		<-s.turn
		return domain.ErrSessionClosed
	}
	s.mu.Lock()
	s.state = domain.SessionStateStreaming
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return nil
}

// Release ends the current turn and returns the session to idle.
func (s *Session) Release() {
	s.mu.Lock()
	if s.state != domain.SessionStateClosed {
		s.state = domain.SessionStateIdle
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()
	<-s.turn
}

// MarkError records that the current turn failed.
func (s *Session) MarkError() {
	s.mu.Lock()
	if s.state == domain.SessionStateStreaming {
		s.state = domain.SessionStateError
	}
	s.mu.Unlock()
}

// State returns the chat state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the time of the last turn boundary or append.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// tryTurn takes the turn if nobody holds it. The holder gives it back with
// releaseTurn.
func (s *Session) tryTurn() bool {
	select {
	case s.turn <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) releaseTurn() {
	<-s.turn
}

// Conversation returns the live SDK handle. If a cancelled turn released the
// previous one, a new handle is opened from the state captured at release.
func (s *Session) Conversation(ctx context.Context) (sdk.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionStateClosed {
		return nil, domain.ErrSessionClosed
	}
	if s.conv != nil {
		return s.conv, nil
	}
	conv, err := s.open(ctx, s.config.Clone(), s.resume)
	if err != nil {
		return nil, err
	}
	s.conv = conv
	return conv, nil
}

// ReleaseConversation closes the SDK handle; the next turn opens a new one
// that resumes where this one stopped.
func (s *Session) ReleaseConversation() error {
	s.mu.Lock()
	conv := s.conv
	s.conv = nil
	if conv != nil {
		if r, ok := conv.(sdk.Resumable); ok && r.SDKSessionID() != "" {
			s.resume.SDKSessionID = r.SDKSessionID()
		}
		s.resume.History = make([]domain.Message, len(s.messages))
		copy(s.resume.History, s.messages)
	}
	s.mu.Unlock()
	if conv == nil {
		return nil
	}
	return conv.Close()
}

// Append adds a message to the log and returns the stored copy.
func (s *Session) Append(role domain.MessageRole, content string, blocks json.RawMessage) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	msg := domain.Message{
		Index:     len(s.messages),
		SessionID: s.id,
		Role:      role,
		Content:   content,
		Blocks:    blocks,
		CreatedAt: now,
	}
	s.messages = append(s.messages, msg)
	s.lastActivity = now
	return msg
}

// Messages returns a snapshot of the log.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessageCount returns the log length.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Emit runs write unless the session is closed. A Close waits for a running
// write to finish; after Close returns every Emit fails with ErrSessionClosed.
func (s *Session) Emit(write func() error) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return write()
}

// Close stops emission and releases the SDK handle. It is idempotent.
func (s *Session) Close() error {
	s.emitMu.Lock()
	if s.closed {
		s.emitMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.emitMu.Unlock()

	s.mu.Lock()
	s.state = domain.SessionStateClosed
	conv := s.conv
	s.conv = nil
	s.mu.Unlock()

	if conv != nil {
		return conv.Close()
	}
	return nil
}

// Summary returns the list-snapshot view.
func (s *Session) Summary() domain.SessionSummary {
	return domain.SessionSummary{
		SessionID:     s.id,
		ProjectID:     s.projectID,
		CreatedAt:     s.createdAt,
		MessagesCount: s.MessageCount(),
	}
}

// Detail returns the single-session view.
func (s *Session) Detail() domain.SessionDetail {
	return domain.SessionDetail{
		SessionSummary: s.Summary(),
		State:          s.State(),
		LastActivity:   s.LastActivity(),
		Config:         s.Config(),
	}
}
