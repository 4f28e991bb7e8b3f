package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

const defaultMaxTokens = 4096

// AnthropicBackend streams turns through the Messages API.
type AnthropicBackend struct {
	apiKey string
	client anthropic.Client
}

// Ensure AnthropicBackend implements Backend interface.
var _ Backend = (*AnthropicBackend)(nil)

// NewAnthropicBackend creates a Messages API backend. An empty baseURL uses the SDK default.
func NewAnthropicBackend(apiKey, baseURL string) *AnthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{
		apiKey: apiKey,
		client: anthropic.NewClient(opts...),
	}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Status(ctx context.Context) Status {
	info := map[string]string{"backend": b.Name(), "api": "messages"}
	if b.apiKey == "" {
		info["error"] = "ANTHROPIC_API_KEY is not set"
		return Status{Available: false, Info: info}
	}
	return Status{Available: true, Info: info}
}

func (b *AnthropicBackend) Open(ctx context.Context, cfg domain.SessionConfig) (Conversation, error) {
	return b.Resume(ctx, cfg, ResumeState{})
}

// Resume rebuilds the API history from the session's message log.
func (b *AnthropicBackend) Resume(ctx context.Context, cfg domain.SessionConfig, state ResumeState) (Conversation, error) {
	var reasons []string
	if len(cfg.AllowedTools) > 0 {
		reasons = append(reasons, "allowed_tools is not supported by the anthropic backend")
	}
	if len(cfg.MCPServers) > 0 {
		reasons = append(reasons, "mcp_servers is not supported by the anthropic backend")
	}
	if cfg.MaxTurns > 1 {
		reasons = append(reasons, "max_turns is not supported by the anthropic backend")
	}
	if len(reasons) > 0 {
		return nil, domain.NewConfigError(reasons...)
	}
	if b.apiKey == "" {
		return nil, fmt.Errorf("anthropic api key missing: %w", domain.ErrSDKUnavailable)
	}
	return &anthropicConversation{client: b.client, cfg: cfg, history: historyParams(state.History)}, nil
}

type anthropicConversation struct {
	client anthropic.Client
	cfg    domain.SessionConfig

	mu      sync.Mutex
	history []anthropic.MessageParam
	closed  bool
}

// historyParams turns a message log into API turns. Result and system entries
// are dropped and consecutive entries of the same role are merged, since the
// API expects user and assistant turns to alternate starting with the user.
func historyParams(msgs []domain.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var role domain.MessageRole
	var blocks []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == domain.RoleUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
		blocks = nil
	}
	for _, m := range msgs {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		if len(out) == 0 && len(blocks) == 0 && m.Role != domain.RoleUser {
			continue
		}
		if m.Role != role {
			flush()
			role = m.Role
		}
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	flush()
	return out
}

func (c *anthropicConversation) params(prompt string) anthropic.MessageNewParams {
	maxTokens := defaultMaxTokens
	if c.cfg.MaxTokens != nil {
		maxTokens = *c.cfg.MaxTokens
	}

	c.mu.Lock()
	messages := make([]anthropic.MessageParam, 0, len(c.history)+1)
	messages = append(messages, c.history...)
	c.mu.Unlock()
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if c.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.cfg.SystemPrompt}}
	}
	if c.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*c.cfg.Temperature)
	}
	return params
}

func (c *anthropicConversation) Send(ctx context.Context, prompt string, cb EventCallback) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("anthropic conversation closed")
	}

	stream := c.client.Messages.NewStreaming(ctx, c.params(prompt))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return fmt.Errorf("failed to accumulate stream event: %w", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				if err := cb(TextDelta(delta.Text)); err != nil {
					return err
				}
			}
		case anthropic.ContentBlockStopEvent:
			idx := int(ev.Index)
			if idx < len(message.Content) && message.Content[idx].Type == "tool_use" {
				block := message.Content[idx]
				if err := cb(ToolUse(block.ID, block.Name, block.Input)); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return cb(Failure(apiErr.Error()))
		}
		return fmt.Errorf("anthropic stream failed: %w", err)
	}

	c.mu.Lock()
	c.history = append(c.history,
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		message.ToParam(),
	)
	c.mu.Unlock()

	usage := &domain.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	ev := Result(usage, EstimateCost(c.cfg.Model, usage), string(message.StopReason))
	ev.SDKSessionID = message.ID
	return cb(ev)
}

func (c *anthropicConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.history = nil
	return nil
}
