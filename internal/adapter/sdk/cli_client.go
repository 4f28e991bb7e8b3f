package sdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// CLIBackend drives the Claude Code CLI in print mode with stream-json output.
// Each turn runs one CLI process; follow-up turns resume the CLI's own session.
type CLIBackend struct {
	path string

	// command builds the process; replaced in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Ensure CLIBackend implements Backend interface.
var _ Backend = (*CLIBackend)(nil)

// NewCLIBackend creates a backend that runs the CLI found at path.
func NewCLIBackend(path string) *CLIBackend {
	return &CLIBackend{path: path, command: exec.CommandContext}
}

func (b *CLIBackend) Name() string { return "claude-cli" }

func (b *CLIBackend) Status(ctx context.Context) Status {
	info := map[string]string{"backend": b.Name(), "path": b.path}
	resolved, err := exec.LookPath(b.path)
	if err != nil {
		info["error"] = err.Error()
		return Status{Available: false, Info: info}
	}
	info["resolved_path"] = resolved

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := b.command(ctx, resolved, "--version").Output()
	if err != nil {
		info["error"] = err.Error()
		return Status{Available: false, Info: info}
	}
	info["version"] = strings.TrimSpace(string(out))
	return Status{Available: true, Info: info}
}

func (b *CLIBackend) Open(ctx context.Context, cfg domain.SessionConfig) (Conversation, error) {
	return b.Resume(ctx, cfg, ResumeState{})
}

// Resume continues the CLI session state.SDKSessionID with --resume.
func (b *CLIBackend) Resume(ctx context.Context, cfg domain.SessionConfig, state ResumeState) (Conversation, error) {
	var reasons []string
	if cfg.Temperature != nil {
		reasons = append(reasons, "temperature is not supported by the claude-cli backend")
	}
	if cfg.MaxTokens != nil {
		reasons = append(reasons, "max_tokens is not supported by the claude-cli backend")
	}
	if len(reasons) > 0 {
		return nil, domain.NewConfigError(reasons...)
	}
	if _, err := exec.LookPath(b.path); err != nil {
		return nil, fmt.Errorf("claude cli %q: %w", b.path, domain.ErrSDKUnavailable)
	}

	var mcpConfig string
	if len(cfg.MCPServers) > 0 {
		raw, err := json.Marshal(map[string]any{"mcpServers": cfg.MCPServers})
		if err != nil {
			return nil, domain.NewConfigError("mcp_servers: " + err.Error())
		}
		mcpConfig = string(raw)
	}

	return &cliConversation{backend: b, cfg: cfg, mcpConfig: mcpConfig, sdkSessionID: state.SDKSessionID}, nil
}

type cliConversation struct {
	backend   *CLIBackend
	cfg       domain.SessionConfig
	mcpConfig string

	mu           sync.Mutex
	sdkSessionID string
	cancel       context.CancelFunc
	closed       bool
}

// args builds the CLI argument list for one turn.
func (c *cliConversation) args(resume string) []string {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	if c.cfg.Model != "" {
		args = append(args, "--model", c.cfg.Model)
	}
	if c.cfg.SystemPrompt != "" {
		args = append(args, "--system-prompt", c.cfg.SystemPrompt)
	}
	if len(c.cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(c.cfg.AllowedTools, ","))
	}
	if c.mcpConfig != "" {
		args = append(args, "--mcp-config", c.mcpConfig)
	}
	if c.cfg.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(c.cfg.MaxTurns))
	}
	if resume != "" {
		args = append(args, "--resume", resume)
	}
	return args
}

func (c *cliConversation) Send(ctx context.Context, prompt string, cb EventCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("claude cli conversation closed")
	}
	resume := c.sdkSessionID
	c.cancel = cancel
	c.mu.Unlock()

	cmd := c.backend.command(ctx, c.backend.path, c.args(resume)...)
	cmd.Stdin = strings.NewReader(prompt)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, max: 8 << 10}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open cli stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start claude cli: %w", err)
	}

	sawResult, streamErr := c.readStream(stdout, cb)
	if streamErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()

	if streamErr != nil {
		return streamErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil && !sawResult {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return fmt.Errorf("claude cli exited: %s", msg)
	}
	if !sawResult {
		return errors.New("claude cli ended without a result")
	}
	return nil
}

// readStream forwards every event in the stream-json output to cb.
func (c *cliConversation) readStream(r io.Reader, cb EventCallback) (bool, error) {
	reader := bufio.NewReader(r)
	sawResult := false
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			events, sessionID, perr := parseStreamLine(line)
			if perr != nil {
				slog.Warn("skipping malformed cli line", "error", perr)
			}
			if sessionID != "" {
				c.mu.Lock()
				c.sdkSessionID = sessionID
				c.mu.Unlock()
			}
			for _, ev := range events {
				if ev.Kind == EventResult || ev.Kind == EventError {
					sawResult = true
				}
				if cbErr := cb(ev); cbErr != nil {
					return sawResult, cbErr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sawResult, nil
			}
			return sawResult, fmt.Errorf("failed to read cli stream: %w", err)
		}
	}
}

// SDKSessionID returns the CLI session the next turn resumes.
func (c *cliConversation) SDKSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sdkSessionID
}

func (c *cliConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

// streamLine covers the fields of every stream-json record the proxy reads.
type streamLine struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    string          `json:"session_id"`
	Message      *streamMessage  `json:"message"`
	IsError      bool            `json:"is_error"`
	Result       string          `json:"result"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	Usage        *domain.Usage   `json:"usage"`
	StopReason   string          `json:"stop_reason"`
	Errors       json.RawMessage `json:"errors"`
}

type streamMessage struct {
	Content    json.RawMessage `json:"content"`
	StopReason string          `json:"stop_reason"`
}

type streamBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// parseStreamLine classifies one stream-json record into normalized events.
// Without partial messages the CLI sends whole text blocks, so they become
// message events rather than deltas.
// It also returns the CLI session id when the record carries one.
func parseStreamLine(line []byte) ([]Event, string, error) {
	var rec streamLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal stream line: %w", err)
	}

	switch rec.Type {
	case "assistant", "user":
		if rec.Message == nil {
			return nil, rec.SessionID, nil
		}
		blocks, err := decodeBlocks(rec.Message.Content)
		if err != nil {
			return nil, rec.SessionID, err
		}
		var events []Event
		for _, b := range blocks {
			switch b.Type {
			case "text":
				if b.Text != "" {
					events = append(events, FullMessage(b.Text))
				}
			case "tool_use":
				events = append(events, ToolUse(b.ID, b.Name, b.Input))
			case "tool_result":
				events = append(events, ToolResult(b.ToolUseID, b.Content))
			}
		}
		return events, rec.SessionID, nil

	case "result":
		if rec.IsError || (rec.Subtype != "" && rec.Subtype != "success") {
			msg := rec.Result
			if msg == "" {
				msg = "claude cli reported " + rec.Subtype
			}
			return []Event{Failure(msg)}, rec.SessionID, nil
		}
		stop := rec.StopReason
		if stop == "" {
			stop = "end_turn"
		}
		return []Event{Result(rec.Usage, rec.TotalCostUSD, stop)}, rec.SessionID, nil

	default:
		// system/init and anything newer carry no chunk
		return nil, rec.SessionID, nil
	}
}

// decodeBlocks accepts either a block array or a bare string.
func decodeBlocks(raw json.RawMessage) ([]streamBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var blocks []streamBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return blocks, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("failed to decode message content: %w", err)
	}
	return []streamBlock{{Type: "text", Text: text}}, nil
}

// limitedWriter keeps at most max bytes of stderr.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
