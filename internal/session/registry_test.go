package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *sdk.MockBackend) {
	t.Helper()
	backend := sdk.NewMockBackend()
	return NewRegistry(backend.Resume), backend
}

var testConfig = domain.SessionConfig{Model: "mock"}

func TestCreateGetListDelete(t *testing.T) {
	ctx := context.Background()
	reg, backend := newTestRegistry(t)

	s, err := reg.Create(ctx, "p", testConfig)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "p", s.ProjectID())
	assert.Equal(t, domain.SessionStateIdle, s.State())

	got, err := reg.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, s.ID(), list[0].SessionID)
	assert.Equal(t, "p", list[0].ProjectID)

	assert.True(t, reg.Delete(s.ID()))
	assert.False(t, reg.Delete(s.ID()))
	_, err = reg.Get(s.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Empty(t, reg.List())

	opened, closed := backend.Handles()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestCreateFailsWhenSDKUnavailable(t *testing.T) {
	backend := &sdk.MockBackend{Unavailable: true}
	reg := NewRegistry(backend.Resume)

	_, err := reg.Create(context.Background(), "", testConfig)
	assert.ErrorIs(t, err, domain.ErrSDKUnavailable)
	assert.Equal(t, 0, reg.Len())
}

func TestCreateRetriesIDCollision(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ids := []string{"same", "same", "other"}
	reg.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	second, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	assert.Equal(t, "same", first.ID())
	assert.Equal(t, "other", second.ID())
}

func TestConfigIsFrozen(t *testing.T) {
	reg, _ := newTestRegistry(t)
	cfg := domain.SessionConfig{Model: "mock", AllowedTools: []string{"Read"}}

	s, err := reg.Create(context.Background(), "", cfg)
	require.NoError(t, err)

	cfg.AllowedTools[0] = "Bash"
	snapshot := s.Config()
	snapshot.AllowedTools[0] = "Write"

	assert.Equal(t, []string{"Read"}, s.Config().AllowedTools)
}

func TestAcquireSerializesTurns(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)

	require.NoError(t, s.Acquire(context.Background()))
	assert.Equal(t, domain.SessionStateStreaming, s.State())

	var mu sync.Mutex
	var order []string
	acquired := make(chan struct{})
	go func() {
		if err := s.Acquire(context.Background()); err == nil {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			s.Release()
		}
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "first-done")
	mu.Unlock()
	s.Release()

	<-acquired
	assert.Equal(t, []string{"first-done", "second"}, order)
	assert.Equal(t, domain.SessionStateIdle, s.State())
}

func TestAcquireGivesUpOnContext(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	require.NoError(t, s.Acquire(context.Background()))
	defer s.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Acquire(ctx), context.DeadlineExceeded)
}

func TestAcquireFailsAfterDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	require.NoError(t, s.Acquire(context.Background()))

	waiting := make(chan error, 1)
	go func() { waiting <- s.Acquire(context.Background()) }()

	reg.Delete(s.ID())
	assert.ErrorIs(t, <-waiting, domain.ErrSessionClosed)
	s.Release()
}

func TestEmitAfterCloseFails(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)

	writes := 0
	require.NoError(t, s.Emit(func() error { writes++; return nil }))

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Emit(func() error {
			close(started)
			<-release
			writes++
			return nil
		})
	}()
	<-started

	deleted := make(chan struct{})
	go func() {
		reg.Delete(s.ID())
		close(deleted)
	}()

	select {
	case <-deleted:
		t.Fatal("delete returned while a chunk was being written")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-deleted

	assert.ErrorIs(t, s.Emit(func() error { writes++; return nil }), domain.ErrSessionClosed)
	assert.Equal(t, 2, writes)
	assert.True(t, s.Closed())
}

func TestMessageLogAppendOnly(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)

	s.Append(domain.RoleUser, "hi", nil)
	s.Append(domain.RoleAssistant, "hello", nil)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].Index)
	assert.Equal(t, 1, msgs[1].Index)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	msgs[0].Content = "tampered"
	assert.Equal(t, "hi", s.Messages()[0].Content)
	assert.Equal(t, 2, s.Summary().MessagesCount)
}

func TestSweepEvictsOnlyIdleSessions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	old, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	busy, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	fresh, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)

	require.NoError(t, busy.Acquire(context.Background()))
	defer busy.Release()

	past := time.Now().Add(-time.Hour)
	old.mu.Lock()
	old.lastActivity = past
	old.mu.Unlock()
	busy.mu.Lock()
	busy.lastActivity = past
	busy.mu.Unlock()

	evicted := reg.Sweep(time.Minute, time.Now())
	assert.Equal(t, []string{old.ID()}, evicted)
	assert.True(t, old.Closed())

	_, err = reg.Get(busy.ID())
	assert.NoError(t, err)
	_, err = reg.Get(fresh.ID())
	assert.NoError(t, err)

	assert.Empty(t, reg.Sweep(0, time.Now()))
}

func TestSweepLeavesKeptSessionsUsable(t *testing.T) {
	reg, _ := newTestRegistry(t)
	fresh, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)

	assert.Empty(t, reg.Sweep(time.Minute, time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, fresh.Acquire(ctx))
	fresh.Release()
}

func TestSweepNeverClosesAcquiredSession(t *testing.T) {
	reg, _ := newTestRegistry(t)
	for i := 0; i < 200; i++ {
		s, err := reg.Create(context.Background(), "", testConfig)
		require.NoError(t, err)
		s.mu.Lock()
		s.lastActivity = time.Now().Add(-time.Hour)
		s.mu.Unlock()

		var wg sync.WaitGroup
		var closedWhileHeld bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.Acquire(context.Background()); err != nil {
				assert.ErrorIs(t, err, domain.ErrSessionClosed)
				return
			}
			time.Sleep(time.Millisecond)
			closedWhileHeld = s.Closed()
			s.Release()
		}()
		go func() {
			defer wg.Done()
			reg.Sweep(time.Minute, time.Now())
		}()
		wg.Wait()
		require.False(t, closedWhileHeld, "session swept while a request held it (iteration %d)", i)
		reg.Delete(s.ID())
	}
}

func TestConversationReopensAfterRelease(t *testing.T) {
	reg, backend := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseConversation())
	conv, err := s.Conversation(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conv)

	opened, closed := backend.Handles()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, closed)

	reg.Delete(s.ID())
	_, err = s.Conversation(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestReleasedConversationResumes(t *testing.T) {
	reg, backend := newTestRegistry(t)
	s, err := reg.Create(context.Background(), "", testConfig)
	require.NoError(t, err)
	s.Append(domain.RoleUser, "hi", nil)
	s.Append(domain.RoleAssistant, "hello", nil)

	require.NoError(t, s.ReleaseConversation())
	s.Append(domain.RoleUser, "after release", nil)
	conv, err := s.Conversation(context.Background())
	require.NoError(t, err)

	resumes := backend.Resumes()
	require.Len(t, resumes, 1)
	assert.Equal(t, "mock-session-1", resumes[0].SDKSessionID)
	require.Len(t, resumes[0].History, 2, "history stops at the release")
	assert.Equal(t, "hello", resumes[0].History[1].Content)

	r, ok := conv.(sdk.Resumable)
	require.True(t, ok)
	assert.Equal(t, "mock-session-1", r.SDKSessionID())
}

func TestCloseAll(t *testing.T) {
	reg, backend := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		_, err := reg.Create(context.Background(), fmt.Sprintf("p%d", i), testConfig)
		require.NoError(t, err)
	}
	require.NoError(t, reg.CloseAll())
	assert.Equal(t, 0, reg.Len())

	_, closed := backend.Handles()
	assert.Equal(t, 3, closed)
}

func TestOpenerErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry(func(context.Context, domain.SessionConfig, sdk.ResumeState) (sdk.Conversation, error) {
		return nil, boom
	})
	_, err := reg.Create(context.Background(), "", testConfig)
	assert.ErrorIs(t, err, boom)
}
