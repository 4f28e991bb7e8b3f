package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/sdk"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/session"
)

// ChunkWriter delivers one chunk to the client. An error means the client is gone.
type ChunkWriter interface {
	WriteChunk(chunk domain.Chunk) error
}

// ChunkWriterFunc adapts a function to ChunkWriter.
type ChunkWriterFunc func(chunk domain.Chunk) error

func (f ChunkWriterFunc) WriteChunk(chunk domain.Chunk) error { return f(chunk) }

// ChatTurn is a chat request whose session has been resolved.
type ChatTurn struct {
	Session *session.Session
	Message string
	// Created is set when the session was created for this request.
	Created bool
}

// OpenChat validates req and resolves its session, creating one with the
// default config when session_id is absent or unknown. Nothing is streamed yet,
// so every error here can still be reported with a plain HTTP status.
func (s *Service) OpenChat(ctx context.Context, req domain.ChatRequest) (*ChatTurn, error) {
	if req.Message == "" {
		return nil, domain.ErrEmptyMessage
	}
	if req.SessionID != "" {
		sess, err := s.registry.Get(req.SessionID)
		if err == nil {
			return &ChatTurn{Session: sess, Message: req.Message}, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		slog.Info("unknown session, creating a new one", "requested_session_id", req.SessionID)
	}
	sess, err := s.CreateSession(ctx, req.ProjectID, domain.SessionConfig{})
	if err != nil {
		return nil, err
	}
	return &ChatTurn{Session: sess, Message: req.Message, Created: true}, nil
}

// Chat runs one round-trip and streams its chunks to w in SDK order. The
// stream always ends with exactly one done chunk, preceded by at most one
// error and at most one result, unless the client disconnects first.
// Requests on the same session are served one after another.
func (s *Service) Chat(ctx context.Context, turn *ChatTurn, w ChunkWriter) error {
	sess := turn.Session
	st := &stream{svc: s, sess: sess, w: w}

	if turn.Created {
		if err := st.emit(domain.NewSessionCreatedChunk(sess.ID())); err != nil {
			return st.abort(ctx, err)
		}
	}

	if err := sess.Acquire(ctx); err != nil {
		return st.abort(ctx, err)
	}
	defer sess.Release()
	st.owned = true

	if s.streams != nil {
		if err := s.streams.Acquire(ctx, 1); err != nil {
			return st.abort(ctx, err)
		}
		defer s.streams.Release(1)
	}

	s.auditor.MessageAppended(sess.Append(domain.RoleUser, turn.Message, nil))

	conv, err := sess.Conversation(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionClosed) {
			return st.abort(ctx, err)
		}
		sess.MarkError()
		slog.Warn("failed to open sdk conversation", "session_id", sess.ID(), "error", err)
		if errors.Is(err, domain.ErrSDKUnavailable) {
			st.fail(domain.ErrorReasonSDKUnavailable)
		} else {
			st.fail(err.Error())
		}
		return nil
	}

	sendErr := conv.Send(ctx, turn.Message, st.handle)

	switch {
	case st.writeErr != nil:
		return st.abort(ctx, st.writeErr)
	case sess.Closed():
		return st.abort(ctx, domain.ErrSessionClosed)
	case ctx.Err() != nil:
		return st.abort(ctx, ctx.Err())
	case sendErr != nil:
		sess.MarkError()
		slog.Warn("sdk stream failed", "session_id", sess.ID(), "error", sendErr)
		st.record()
		st.fail(sendErr.Error())
		return nil
	case st.failed:
		sess.MarkError()
	}
	st.record()
	st.done()
	return nil
}

// stream tracks one response while it is being written.
type stream struct {
	svc  *Service
	sess *session.Session
	w    ChunkWriter

	// owned is set once this request holds the session's turn.
	owned bool

	text     strings.Builder
	blocks   []json.RawMessage
	result   *domain.Chunk
	failed   bool
	finished bool
	writeErr error
}

// handle receives SDK events in order and forwards them as chunks.
func (st *stream) handle(ev sdk.Event) error {
	if st.result != nil || st.failed {
		// only done may follow a result or an error
		return nil
	}
	chunk := ev.Chunk(st.sess.ID())
	if err := st.emit(chunk); err != nil {
		return err
	}
	switch ev.Kind {
	case sdk.EventTextDelta, sdk.EventMessage:
		st.text.WriteString(ev.Text)
	case sdk.EventToolUse, sdk.EventToolResult:
		if block, err := json.Marshal(chunk); err == nil {
			st.blocks = append(st.blocks, block)
		}
	case sdk.EventResult:
		st.result = &chunk
	case sdk.EventError:
		st.failed = true
	}
	return nil
}

// emit writes chunk unless the session has been closed and mirrors it to watchers.
func (st *stream) emit(chunk domain.Chunk) error {
	if st.writeErr != nil {
		return st.writeErr
	}
	err := st.sess.Emit(func() error {
		if err := st.w.WriteChunk(chunk); err != nil {
			return err
		}
		st.svc.hub.Publish(st.sess.ID(), chunk)
		return nil
	})
	if err != nil {
		st.writeErr = err
	}
	return err
}

// fail ends the stream with an error and done.
func (st *stream) fail(message string) {
	if !st.failed {
		err := st.emit(domain.NewErrorChunk(message))
		if errors.Is(err, domain.ErrSessionClosed) {
			st.closedTail()
			return
		}
		if err != nil {
			return
		}
		st.failed = true
	}
	st.done()
}

func (st *stream) done() {
	if st.finished {
		return
	}
	err := st.emit(domain.NewDoneChunk(st.sess.ID()))
	if errors.Is(err, domain.ErrSessionClosed) {
		st.closedTail()
		return
	}
	st.finished = true
}

// closedTail ends a stream whose session was closed under it. The chunks go
// straight to the client since the session no longer emits.
func (st *stream) closedTail() {
	if st.finished {
		return
	}
	st.finished = true
	if !st.failed {
		if st.w.WriteChunk(domain.NewErrorChunk(domain.ErrorReasonSessionClosed)) != nil {
			return
		}
		st.failed = true
	}
	_ = st.w.WriteChunk(domain.NewDoneChunk(st.sess.ID()))
}

// abort handles a stream that cannot continue. A closed session ends with
// session_closed and done; anything else is a client disconnect, which
// releases the SDK handle if this request owns the turn.
func (st *stream) abort(ctx context.Context, cause error) error {
	if errors.Is(cause, domain.ErrSessionClosed) {
		st.record()
		st.closedTail()
		return nil
	}

	slog.Info("chat client disconnected", "session_id", st.sess.ID(), "error", cause)
	if st.owned {
		st.sess.MarkError()
		if err := st.sess.ReleaseConversation(); err != nil {
			slog.Warn("failed to release sdk conversation", "session_id", st.sess.ID(), "error", err)
		}
		st.record()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return cause
}

// record appends the assistant reply and the result to the message log.
func (st *stream) record() {
	if st.text.Len() > 0 || len(st.blocks) > 0 {
		var blocks json.RawMessage
		if len(st.blocks) > 0 {
			blocks, _ = json.Marshal(st.blocks)
		}
		msg := st.sess.Append(domain.RoleAssistant, st.text.String(), blocks)
		st.svc.auditor.MessageAppended(msg)
		st.text.Reset()
		st.blocks = nil
	}
	if st.result != nil {
		payload, _ := json.Marshal(st.result)
		msg := st.sess.Append(domain.RoleResult, string(payload), nil)
		st.svc.auditor.MessageAppended(msg)
		st.result = nil
	}
}
