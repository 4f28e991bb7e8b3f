package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

func init() {
	chatCmd.Flags().String("server", "http://localhost:8080", "agent proxy base URL")
	chatCmd.Flags().String("session", "", "session id to continue")
	chatCmd.Flags().String("project", "", "project id for a new session")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message and print the streamed reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		sessionID, _ := cmd.Flags().GetString("session")
		projectID, _ := cmd.Flags().GetString("project")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		req := domain.ChatRequest{
			Message:   strings.Join(args, " "),
			SessionID: sessionID,
			ProjectID: projectID,
		}
		return streamChat(ctx, server, req, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// streamChat posts req and renders chunks until done.
func streamChat(ctx context.Context, server string, req domain.ChatRequest, out, errOut io.Writer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr domain.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if len(apiErr.Details) > 0 {
				return fmt.Errorf("%s (%d): %s", apiErr.Error, resp.StatusCode, strings.Join(apiErr.Details, "; "))
			}
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("chat failed with status %d", resp.StatusCode)
	}

	var failed string
	err = readChunks(resp.Body, func(chunk domain.Chunk) bool {
		switch chunk.Type {
		case domain.ChunkTypeSessionCreated:
			fmt.Fprintf(errOut, "session: %s\n", chunk.SessionID)
		case domain.ChunkTypeTextDelta, domain.ChunkTypeMessage:
			fmt.Fprint(out, chunk.Content)
		case domain.ChunkTypeToolUse:
			fmt.Fprintf(errOut, "\n[tool %s] %s\n", chunk.Name, string(chunk.Input))
		case domain.ChunkTypeResult:
			fmt.Fprintln(out)
			if chunk.Usage != nil {
				fmt.Fprintf(errOut, "tokens: in=%d out=%d", chunk.Usage.InputTokens, chunk.Usage.OutputTokens)
				if chunk.Cost != nil {
					fmt.Fprintf(errOut, " cost=$%.4f", *chunk.Cost)
				}
				fmt.Fprintln(errOut)
			}
		case domain.ChunkTypeError:
			failed = chunk.Error
		}
		return !chunk.IsTerminal()
	})
	if err != nil {
		return err
	}
	if failed != "" {
		return fmt.Errorf("stream error: %s", failed)
	}
	return nil
}

// readChunks decodes the data field of each SSE event and calls fn until it
// returns false or the stream ends.
func readChunks(r io.Reader, fn func(domain.Chunk) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			var chunk domain.Chunk
			if err := json.Unmarshal([]byte(data.String()), &chunk); err != nil {
				return fmt.Errorf("malformed chunk: %w", err)
			}
			data.Reset()
			if !fn(chunk) {
				return nil
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(rest, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream ended without done")
}
