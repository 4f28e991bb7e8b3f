// Package sdk wraps the external LLM SDKs behind one conversation abstraction.
package sdk

import (
	"context"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// Backend creates conversation handles for one SDK.
type Backend interface {
	// Name identifies the backend in status responses and logs.
	Name() string

	// Status reports whether the SDK can currently be used.
	Status(ctx context.Context) Status

	// Open validates cfg against what the SDK supports and returns a new handle.
	// Unsupported options fail with domain.ErrInvalidConfig.
	Open(ctx context.Context, cfg domain.SessionConfig) (Conversation, error)

	// Resume is Open for a conversation whose earlier handle was released.
	// The new handle continues from state instead of starting blank.
	Resume(ctx context.Context, cfg domain.SessionConfig, state ResumeState) (Conversation, error)
}

// ResumeState is what a reopened handle needs to pick up a conversation.
type ResumeState struct {
	// SDKSessionID is the SDK's own conversation id, when it keeps one.
	SDKSessionID string
	// History is the session's message log up to the release, oldest first.
	History []domain.Message
}

// Resumable is implemented by conversations that carry an SDK-side id.
type Resumable interface {
	SDKSessionID() string
}

// Conversation is a live SDK conversation handle.
type Conversation interface {
	// Send submits a user message and calls cb for each SDK event, in order,
	// as soon as it is produced. A non-nil error from cb stops the iteration
	// and is returned. The last event of a successful turn is an EventResult
	// or an EventError.
	Send(ctx context.Context, prompt string, cb EventCallback) error

	// Close releases the handle and anything it started.
	Close() error
}

// Status describes SDK availability.
type Status struct {
	Available bool
	Info      map[string]string
}

// EventCallback is called for each event produced during Send.
type EventCallback func(ev Event) error
