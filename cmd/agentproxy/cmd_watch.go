package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

func init() {
	watchCmd.Flags().String("server", "http://localhost:8080", "agent proxy base URL")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow the chunks of a session from another client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		addr, err := watchURL(server, args[0])
		if err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), addr, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		done := make(chan error, 1)
		go func() { done <- printChunks(conn, cmd.OutOrStdout()) }()

		select {
		case err := <-done:
			return err
		case <-interrupt:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			return nil
		}
	},
}

// watchURL turns the server base URL into the session's websocket URL.
func watchURL(server, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(server, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u = u.JoinPath("api", "sessions", sessionID, "watch")
	return u.String(), nil
}

func printChunks(conn *websocket.Conn, out io.Writer) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				fmt.Fprintln(out, "[session closed]")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var chunk domain.Chunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		switch chunk.Type {
		case domain.ChunkTypeTextDelta, domain.ChunkTypeMessage:
			fmt.Fprint(out, chunk.Content)
		case domain.ChunkTypeToolUse:
			fmt.Fprintf(out, "\n[tool %s]\n", chunk.Name)
		case domain.ChunkTypeError:
			fmt.Fprintf(out, "\n[error] %s\n", chunk.Error)
		}
		if chunk.IsTerminal() {
			fmt.Fprintln(out)
		}
	}
}
