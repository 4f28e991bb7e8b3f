// Package service implements the chat proxy: session lifecycle, the
// streaming chat pipeline and the Flow balance lookup.
package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/flow"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/config"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/session"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/watch"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/policy"
)

const serviceName = "agentproxy"

type Service struct {
	registry     *session.Registry
	backend      sdk.Backend
	auditor      *Auditor
	hub          *watch.Hub
	flowClient   *flow.Client
	policyEngine *policy.Engine
	streams      *semaphore.Weighted
	config       *config.Config
	now          func() time.Time
}

// New wires the service. auditor and policyEngine may be nil.
func New(cfg *config.Config, backend sdk.Backend, auditor *Auditor, hub *watch.Hub, flowClient *flow.Client, policyEngine *policy.Engine) *Service {
	if hub == nil {
		hub = watch.NewHub(watch.DefaultBuffer)
	}
	var streams *semaphore.Weighted
	if cfg.MaxConcurrentStreams > 0 {
		streams = semaphore.NewWeighted(int64(cfg.MaxConcurrentStreams))
	}
	return &Service{
		registry:     session.NewRegistry(backend.Resume),
		backend:      backend,
		auditor:      auditor,
		hub:          hub,
		flowClient:   flowClient,
		policyEngine: policyEngine,
		streams:      streams,
		config:       cfg,
		now:          time.Now,
	}
}

// Hub returns the watch hub chunks are published to.
func (s *Service) Hub() *watch.Hub {
	return s.hub
}

// Shutdown closes every session. In-flight streams end with a session_closed
// error. A session whose chunk write is stuck on a slow client cannot close
// until the write returns; Shutdown stops waiting for it when ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	for _, sum := range s.registry.List() {
		s.hub.CloseSession(sum.SessionID)
		s.auditor.SessionClosed(sum.SessionID, closeReasonShutdown, s.now())
	}

	done := make(chan error, 1)
	go func() { done <- s.registry.CloseAll() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sessions still closing: %w", ctx.Err())
	}
}
