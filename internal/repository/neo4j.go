package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Neo4jConfig holds connection settings for the graph audit log.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore mirrors sessions and messages into a property graph:
// (:Message)-[:IN_SESSION]->(:Session)-[:IN_PROJECT]->(:Project).
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// Ensure Neo4jStore implements AuditStore interface.
var _ AuditStore = (*Neo4jStore)(nil)

// NewNeo4jStore creates the driver. It does not dial; call Ping to verify.
func NewNeo4jStore(cfg Neo4jConfig) (*Neo4jStore, error) {
	var auth neo4j.AuthToken
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	} else {
		auth = neo4j.NoAuth()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

// Ping checks database connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("write query failed: %w", err)
	}
	return nil
}

const (
	cypherSession = `MERGE (s:Session {id: $id})
SET s.project_id = $project_id, s.backend = $backend, s.model = $model, s.created_at = $created_at
WITH s
WHERE $project_id <> ''
MERGE (p:Project {id: $project_id})
MERGE (s)-[:IN_PROJECT]->(p)`

	cypherMessage = `MERGE (s:Session {id: $session_id})
CREATE (m:Message {session_id: $session_id, index: $index, role: $role, content: $content, created_at: $created_at})
CREATE (m)-[:IN_SESSION]->(s)`

	cypherClosed = `MATCH (s:Session {id: $id})
SET s.closed_at = $closed_at, s.close_reason = $reason`
)

func sessionParams(rec SessionRecord) map[string]any {
	return map[string]any{
		"id":         rec.SessionID,
		"project_id": rec.ProjectID,
		"backend":    rec.Backend,
		"model":      rec.Config.Model,
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func messageParams(msg domain.Message) map[string]any {
	return map[string]any{
		"session_id": msg.SessionID,
		"index":      int64(msg.Index),
		"role":       string(msg.Role),
		"content":    msg.Content,
		"created_at": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Neo4jStore) RecordSession(ctx context.Context, rec SessionRecord) error {
	return s.write(ctx, cypherSession, sessionParams(rec))
}

func (s *Neo4jStore) RecordMessage(ctx context.Context, msg domain.Message) error {
	return s.write(ctx, cypherMessage, messageParams(msg))
}

func (s *Neo4jStore) RecordSessionClosed(ctx context.Context, sessionID, reason string, at time.Time) error {
	return s.write(ctx, cypherClosed, map[string]any{
		"id":        sessionID,
		"reason":    reason,
		"closed_at": at.UTC().Format(time.RFC3339Nano),
	})
}
