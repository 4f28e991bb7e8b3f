package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// SQLiteStore implements AuditStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements AuditStore interface.
var _ AuditStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL DEFAULT '',
			backend TEXT NOT NULL DEFAULT '',
			config TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			closed_at DATETIME,
			close_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			blocks TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, idx),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordSession stores a new session row.
func (s *SQLiteStore) RecordSession(ctx context.Context, rec SessionRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, project_id, backend, config, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ProjectID, rec.Backend, string(cfg), rec.CreatedAt)
	return err
}

// RecordMessage appends a message row.
func (s *SQLiteStore) RecordMessage(ctx context.Context, msg domain.Message) error {
	var blocks sql.NullString
	if len(msg.Blocks) > 0 {
		blocks = sql.NullString{String: string(msg.Blocks), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, idx, role, content, blocks, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Index, string(msg.Role), msg.Content, blocks, msg.CreatedAt)
	return err
}

// RecordSessionClosed stamps the close time and reason.
func (s *SQLiteStore) RecordSessionClosed(ctx context.Context, sessionID, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET closed_at = ?, close_reason = ? WHERE session_id = ?`,
		at, reason, sessionID)
	return err
}

// AuditedSession is a session row read back from the log.
type AuditedSession struct {
	SessionRecord
	ClosedAt    *time.Time
	CloseReason string
}

// GetSession retrieves a session row by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*AuditedSession, error) {
	var rec AuditedSession
	var cfg, reason sql.NullString
	var closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, project_id, backend, config, created_at, closed_at, close_reason FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&rec.SessionID, &rec.ProjectID, &rec.Backend, &cfg, &rec.CreatedAt, &closedAt, &reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Valid {
		if err := json.Unmarshal([]byte(cfg.String), &rec.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}
	rec.CloseReason = reason.String
	return &rec, nil
}

// GetMessages retrieves messages for a session in log order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT session_id, idx, role, content, blocks, created_at FROM messages WHERE session_id = ? ORDER BY idx ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var blocks sql.NullString
		if err := rows.Scan(&msg.SessionID, &msg.Index, &role, &msg.Content, &blocks, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = domain.MessageRole(role)
		if blocks.Valid {
			msg.Blocks = json.RawMessage(blocks.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
