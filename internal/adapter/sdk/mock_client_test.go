package sdk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

func TestMockConversationStreamsInOrder(t *testing.T) {
	backend := NewMockBackend()
	conv, err := backend.Open(context.Background(), domain.SessionConfig{Model: "mock"})
	require.NoError(t, err)
	defer conv.Close()

	var text strings.Builder
	var kinds []EventKind
	err = conv.Send(context.Background(), "hello", func(ev Event) error {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventTextDelta {
			text.WriteString(ev.Text)
		}
		return nil
	})
	require.NoError(t, err)

	require.NotEmpty(t, kinds)
	assert.Equal(t, EventResult, kinds[len(kinds)-1])
	assert.Contains(t, text.String(), `Received your message: "hello"`)
}

func TestMockConversationStopsOnCallbackError(t *testing.T) {
	backend := NewMockBackend()
	conv, err := backend.Open(context.Background(), domain.SessionConfig{Model: "mock"})
	require.NoError(t, err)

	stop := errors.New("client gone")
	calls := 0
	err = conv.Send(context.Background(), "hello", func(ev Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestMockConversationHonoursCancellation(t *testing.T) {
	backend := &MockBackend{Delay: 50 * time.Millisecond}
	conv, err := backend.Open(context.Background(), domain.SessionConfig{Model: "mock"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = conv.Send(ctx, "hello", func(ev Event) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockBackendUnavailable(t *testing.T) {
	backend := &MockBackend{Unavailable: true}
	assert.False(t, backend.Status(context.Background()).Available)

	_, err := backend.Open(context.Background(), domain.SessionConfig{Model: "mock"})
	assert.ErrorIs(t, err, domain.ErrSDKUnavailable)
}

func TestMockBackendCountsHandles(t *testing.T) {
	backend := NewMockBackend()
	conv, err := backend.Open(context.Background(), domain.SessionConfig{Model: "mock"})
	require.NoError(t, err)
	require.NoError(t, conv.Close())
	require.NoError(t, conv.Close())

	opened, closed := backend.Handles()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)

	err = conv.Send(context.Background(), "again", func(Event) error { return nil })
	assert.Error(t, err)
}
