// Package store defines the audit log interface and its backends.
package store

import (
	"context"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// SessionRecord is what the audit log keeps about a session.
type SessionRecord struct {
	SessionID string
	ProjectID string
	Backend   string
	Config    domain.SessionConfig
	CreatedAt time.Time
}

// AuditStore is a write-through audit log. Chat never depends on it.
type AuditStore interface {
	RecordSession(ctx context.Context, rec SessionRecord) error
	RecordMessage(ctx context.Context, msg domain.Message) error
	RecordSessionClosed(ctx context.Context, sessionID, reason string, at time.Time) error

	// Lifecycle
	Close() error
}

// NopStore discards everything.
type NopStore struct{}

// Ensure NopStore implements AuditStore interface.
var _ AuditStore = NopStore{}

func (NopStore) RecordSession(context.Context, SessionRecord) error { return nil }
func (NopStore) RecordMessage(context.Context, domain.Message) error { return nil }
func (NopStore) RecordSessionClosed(context.Context, string, string, time.Time) error {
	return nil
}
func (NopStore) Close() error { return nil }
