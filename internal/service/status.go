package service

import (
	"context"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Handler statuses reported by SDKStatus.
const (
	handlerReady       = "ready"
	handlerUnavailable = "unavailable"
)

func (s *Service) Health(ctx context.Context) domain.HealthResponse {
	return domain.HealthResponse{
		Status:         "ok",
		Timestamp:      s.now(),
		Service:        serviceName,
		SDKAvailable:   s.backend.Status(ctx).Available,
		SessionsActive: s.registry.Len(),
	}
}

func (s *Service) SDKStatus(ctx context.Context) domain.SDKStatusResponse {
	status := s.backend.Status(ctx)
	handler := handlerReady
	if !status.Available {
		handler = handlerUnavailable
	}
	return domain.SDKStatusResponse{
		SDKAvailable:   status.Available,
		Info:           status.Info,
		HandlerStatus:  handler,
		SessionsActive: s.registry.Len(),
		Timestamp:      s.now(),
	}
}
