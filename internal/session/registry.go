package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Registry maps session ids to live sessions. A single RWMutex guards the map;
// each Session guards its own state.
type Registry struct {
	open Opener

	mu       sync.RWMutex
	sessions map[string]*Session

	newID func() string
	now   func() time.Time
}

// NewRegistry creates an empty registry whose sessions open SDK handles with open.
func NewRegistry(open Opener) *Registry {
	return &Registry{
		open:     open,
		sessions: make(map[string]*Session),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

// Create opens an SDK handle for cfg and registers a new session.
func (r *Registry) Create(ctx context.Context, projectID string, cfg domain.SessionConfig) (*Session, error) {
	conv, err := r.open(ctx, cfg.Clone(), sdk.ResumeState{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sdk conversation: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for _, exists := r.sessions[id]; exists; _, exists = r.sessions[id] {
		id = r.newID()
	}
	s := newSession(id, projectID, cfg, conv, r.open, r.now())
	r.sessions[id] = s
	return s, nil
}

// Get returns the session or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Delete unregisters and closes the session. It reports whether it existed.
// When Delete returns, the session emits no further chunks.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := s.Close(); err != nil {
		slog.Warn("failed to close sdk conversation", "session_id", id, "error", err)
	}
	return true
}

// List returns a snapshot of every session, oldest first.
func (r *Registry) List() []domain.SessionSummary {
	r.mu.RLock()
	out := make([]domain.SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Summary())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than idle and returns their ids.
// The idle check runs while holding the session's turn, so a request that
// has acquired the session is never swept from under it.
func (r *Registry) Sweep(idle time.Duration, now time.Time) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := now.Add(-idle)

	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if !s.tryTurn() {
			continue
		}
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
			continue
		}
		s.releaseTurn()
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, s := range evicted {
		if err := s.Close(); err != nil {
			slog.Warn("failed to close swept session", "session_id", s.ID(), "error", err)
		}
		s.releaseTurn()
		ids = append(ids, s.ID())
	}
	return ids
}

// CloseAll unregisters and closes every session.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range all {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
