package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/flow"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/config"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/repository"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/service"
	httpserver "github.com/diegofornalha/neo4j-agent-flow-sub000/internal/transport/http"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/watch"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/policy"
)

const shutdownTimeout = 10 * time.Second

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides HTTP_PORT)")
	serveCmd.Flags().String("backend", "", "SDK backend: claude-cli, anthropic or mock (overrides SDK_BACKEND)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent proxy HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.HTTPPort = port
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.SDKBackend = backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := sdk.NewBackend(cfg)
	if err != nil {
		return err
	}
	if st := backend.Status(ctx); !st.Available {
		slog.Warn("sdk backend unavailable; chat requests will fail until it is", "backend", backend.Name(), "info", st.Info)
	}

	auditStore, err := openAuditStore(ctx, cfg)
	if err != nil {
		return err
	}
	auditor := service.NewAuditor(auditStore, cfg.AuditQueueSize)

	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		auditor.Close()
		return fmt.Errorf("failed to load admission policy: %w", err)
	}

	flowClient := flow.NewClient(cfg.FlowAccessURL, cfg.FlowNetwork, cfg.FlowTimeout)
	svc := service.New(cfg, backend, auditor, watch.NewHub(watch.DefaultBuffer), flowClient, policyEngine)

	var sweeper *service.Sweeper
	if cfg.SweepSchedule != "" {
		if sweeper, err = service.NewSweeper(svc, cfg.SweepSchedule); err != nil {
			auditor.Close()
			return err
		}
		sweeper.Start()
	}

	e := httpserver.NewServer(svc)

	slog.Info("agentproxy started",
		"port", cfg.HTTPPort,
		"sdk_backend", backend.Name(),
		"audit_backend", cfg.AuditBackend,
		"flow_network", flowClient.Network(),
		"max_concurrent_streams", cfg.MaxConcurrentStreams,
	)

	// The auditor outlives the server so that close records from shutdown
	// are still written.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan error, 1)
	go func() { auditDone <- auditor.Run(auditCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down agentproxy")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if sweeper != nil {
			sweeper.Stop()
		}
		// Closing sessions first ends open streams so the server can drain.
		if err := svc.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to close sessions cleanly", "error", err)
		}
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to shut down http server gracefully", "error", err)
			if err := e.Close(); err != nil {
				slog.Warn("failed to close http server", "error", err)
			}
		}
		return nil
	})

	runErr := g.Wait()

	stopAudit()
	<-auditDone
	if err := auditor.Close(); err != nil {
		slog.Warn("failed to close audit store", "error", err)
	}
	slog.Info("agentproxy stopped")
	return runErr
}

// openAuditStore opens the audit store selected by AUDIT_BACKEND.
func openAuditStore(ctx context.Context, cfg *config.Config) (store.AuditStore, error) {
	switch cfg.AuditBackend {
	case config.AuditSQLite:
		st, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite audit store: %w", err)
		}
		slog.Info("audit log enabled", "backend", "sqlite", "database", cfg.DatabaseURL)
		return st, nil
	case config.AuditNeo4j:
		st, err := store.NewNeo4jStore(store.Neo4jConfig{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open neo4j audit store: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			slog.Warn("neo4j not reachable yet; audit writes will retry per entry", "uri", cfg.Neo4jURI, "error", err)
		}
		slog.Info("audit log enabled", "backend", "neo4j", "uri", cfg.Neo4jURI)
		return st, nil
	}
	return store.NopStore{}, nil
}
