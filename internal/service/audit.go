package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/repository"
)

const auditWriteTimeout = 5 * time.Second

type auditJob struct {
	kind      string
	sessionID string
	write     func(ctx context.Context, st store.AuditStore) error
}

// Auditor forwards session activity to an AuditStore from a single worker.
// Recording never blocks the caller: when the queue is full the entry is
// dropped with a warning. A nil *Auditor records nothing.
type Auditor struct {
	store store.AuditStore
	queue chan auditJob
}

// NewAuditor creates an auditor with a queue of size entries.
func NewAuditor(st store.AuditStore, size int) *Auditor {
	if size <= 0 {
		size = 1
	}
	return &Auditor{store: st, queue: make(chan auditJob, size)}
}

// Run writes queued entries until ctx is done, then drains what is left.
func (a *Auditor) Run(ctx context.Context) error {
	for {
		select {
		case job := <-a.queue:
			a.write(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-a.queue:
					a.write(job)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Auditor) write(job auditJob) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := job.write(ctx, a.store); err != nil {
		slog.Warn("audit write failed", "kind", job.kind, "session_id", job.sessionID, "error", err)
	}
}

func (a *Auditor) enqueue(job auditJob) {
	if a == nil {
		return
	}
	select {
	case a.queue <- job:
	default:
		slog.Warn("audit queue full, dropping entry", "kind", job.kind, "session_id", job.sessionID)
	}
}

func (a *Auditor) SessionCreated(rec store.SessionRecord) {
	a.enqueue(auditJob{kind: "session", sessionID: rec.SessionID, write: func(ctx context.Context, st store.AuditStore) error {
		return st.RecordSession(ctx, rec)
	}})
}

func (a *Auditor) MessageAppended(msg domain.Message) {
	a.enqueue(auditJob{kind: "message", sessionID: msg.SessionID, write: func(ctx context.Context, st store.AuditStore) error {
		return st.RecordMessage(ctx, msg)
	}})
}

func (a *Auditor) SessionClosed(sessionID, reason string, at time.Time) {
	a.enqueue(auditJob{kind: "session_closed", sessionID: sessionID, write: func(ctx context.Context, st store.AuditStore) error {
		return st.RecordSessionClosed(ctx, sessionID, reason, at)
	}})
}

// Close closes the underlying store. Call it after Run has returned.
func (a *Auditor) Close() error {
	if a == nil {
		return nil
	}
	return a.store.Close()
}
