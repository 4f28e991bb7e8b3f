package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/repository"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/session"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/policy"
)

// Reasons recorded when a session leaves the registry.
const (
	closeReasonDeleted  = "deleted"
	closeReasonIdle     = "idle"
	closeReasonShutdown = "shutdown"
)

// CreateSession merges cfg with the configured defaults, runs admission and
// registers a new session with an open SDK handle.
func (s *Service) CreateSession(ctx context.Context, projectID string, cfg domain.SessionConfig) (*session.Session, error) {
	cfg = cfg.WithDefaults(s.config.Defaults)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.policyEngine != nil {
		reasons, err := s.policyEngine.Check(ctx, policy.Input{
			Backend:   s.backend.Name(),
			ProjectID: projectID,
			Config:    cfg,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate session policy: %w", err)
		}
		if len(reasons) > 0 {
			return nil, domain.NewConfigError(reasons...)
		}
	}

	sess, err := s.registry.Create(ctx, projectID, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("session created", "session_id", sess.ID(), "project_id", projectID, "backend", s.backend.Name())

	s.auditor.SessionCreated(store.SessionRecord{
		SessionID: sess.ID(),
		ProjectID: projectID,
		Backend:   s.backend.Name(),
		Config:    sess.Config(),
		CreatedAt: sess.CreatedAt(),
	})
	return sess, nil
}

// GetSession returns the detail view of a live session.
func (s *Service) GetSession(id string) (domain.SessionDetail, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	return sess.Detail(), nil
}

// ListSessions returns a snapshot of every live session.
func (s *Service) ListSessions() []domain.SessionSummary {
	return s.registry.List()
}

// Messages returns the message log of a live session.
func (s *Service) Messages(id string) ([]domain.Message, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Messages(), nil
}

// DeleteSession closes the session. It returns ErrSessionNotFound for unknown ids.
func (s *Service) DeleteSession(id string) error {
	if !s.registry.Delete(id) {
		return domain.ErrSessionNotFound
	}
	s.hub.CloseSession(id)
	s.auditor.SessionClosed(id, closeReasonDeleted, s.now())
	slog.Info("session deleted", "session_id", id)
	return nil
}

// SweepIdle evicts sessions idle longer than the configured timeout and
// returns how many were evicted. A zero timeout disables eviction.
func (s *Service) SweepIdle(now time.Time) int {
	evicted := s.registry.Sweep(s.config.IdleTimeout, now)
	for _, id := range evicted {
		s.hub.CloseSession(id)
		s.auditor.SessionClosed(id, closeReasonIdle, now)
	}
	if len(evicted) > 0 {
		slog.Info("swept idle sessions", "count", len(evicted))
	}
	return len(evicted)
}
