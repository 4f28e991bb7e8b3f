package service

import (
	"context"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Balance looks up a Flow account. An empty address means the configured default.
func (s *Service) Balance(ctx context.Context, address string) (*domain.Balance, error) {
	if address == "" {
		address = s.config.FlowDefaultAddress
	}
	return s.flowClient.GetBalance(ctx, address)
}
