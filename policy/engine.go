// Package policy evaluates session admission rules written in Rego.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the session_policy module in policyContent.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_policy.deny"),
		rego.Module("session_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads the policy from path, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Input is what a session admission decision sees.
type Input struct {
	Backend   string
	ProjectID string
	Config    domain.SessionConfig
}

// document flattens the input into plain JSON-like values. Unset optional
// fields are left out so rules on them stay undefined.
func (in Input) document() map[string]any {
	cfg := map[string]any{
		"model":         in.Config.Model,
		"system_prompt": in.Config.SystemPrompt,
		"max_turns":     in.Config.MaxTurns,
	}
	if in.Config.Temperature != nil {
		cfg["temperature"] = *in.Config.Temperature
	}
	if in.Config.MaxTokens != nil {
		cfg["max_tokens"] = *in.Config.MaxTokens
	}
	tools := make([]any, 0, len(in.Config.AllowedTools))
	for _, t := range in.Config.AllowedTools {
		tools = append(tools, t)
	}
	cfg["allowed_tools"] = tools
	servers := make([]any, 0, len(in.Config.MCPServers))
	for name := range in.Config.MCPServers {
		servers = append(servers, name)
	}
	cfg["mcp_servers"] = servers

	return map[string]any{
		"backend":    in.Backend,
		"project_id": in.ProjectID,
		"config":     cfg,
	}
}

// Check returns the sorted deny reasons; an empty result admits the session.
func (e *Engine) Check(ctx context.Context, in Input) ([]string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.document()))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	set, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected deny type %T", results[0].Expressions[0].Value)
	}
	reasons := make([]string, 0, len(set))
	for _, v := range set {
		reasons = append(reasons, fmt.Sprint(v))
	}
	sort.Strings(reasons)
	return reasons, nil
}

// DefaultPolicy is the built-in admission policy.
const DefaultPolicy = `
package session_policy

deny[msg] {
	input.config.model == ""
	msg := "model must not be empty"
}

deny[msg] {
	t := input.config.temperature
	t < 0
	msg := "temperature must be between 0 and 2"
}

deny[msg] {
	t := input.config.temperature
	t > 2
	msg := "temperature must be between 0 and 2"
}

deny[msg] {
	n := input.config.max_tokens
	n <= 0
	msg := "max_tokens must be positive"
}

deny[msg] {
	n := input.config.max_tokens
	n > 200000
	msg := "max_tokens must not exceed 200000"
}

deny[msg] {
	input.config.max_turns < 0
	msg := "max_turns must not be negative"
}
`
