package sdk

import (
	"fmt"
	"log/slog"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/config"
)

// NewBackend creates the SDK backend selected by cfg.SDKBackend.
// AGENTPROXY_MODE=MOCK has already been folded into cfg by config.Load.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.SDKBackend {
	case config.BackendMock:
		slog.Info("using mock SDK backend")
		return NewMockBackend(), nil
	case config.BackendAnthropic:
		return NewAnthropicBackend(cfg.AnthropicAPIKey, cfg.AnthropicURL), nil
	case config.BackendClaudeCLI:
		return NewCLIBackend(cfg.ClaudeCLIPath), nil
	}
	return nil, fmt.Errorf("unknown sdk backend %q", cfg.SDKBackend)
}
