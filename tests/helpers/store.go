package helpers

import (
	"testing"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/repository"
)

// NewTestSQLiteStore opens an in-memory audit store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
