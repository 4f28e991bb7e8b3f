// Package watch fans session chunks out to live observers.
package watch

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Subscriber receives encoded chunks for one session. The hub closes Send
// when the subscriber is dropped or the session ends.
type Subscriber struct {
	ID        string
	SessionID string
	Send      chan []byte
}

// Hub manages session subscribers.
type Hub struct {
	mu sync.Mutex

	// Subscribers indexed by session id, then subscriber id
	sessions map[string]map[string]*Subscriber

	buffer int
}

// NewHub creates a hub whose subscribers queue up to buffer chunks.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		sessions: make(map[string]map[string]*Subscriber),
		buffer:   buffer,
	}
}

// Subscribe registers a new subscriber for sessionID.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Send:      make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Subscriber)
	}
	h.sessions[sessionID][sub.ID] = sub
	h.mu.Unlock()

	slog.Debug("watch subscriber registered", "subscriber_id", sub.ID, "session_id", sessionID)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	subs, ok := h.sessions[sub.SessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.sessions, sub.SessionID)
	}
	close(sub.Send)
}

// Publish queues chunk for every subscriber of its session. It never blocks:
// a subscriber whose buffer is full is dropped.
func (h *Hub) Publish(sessionID string, chunk domain.Chunk) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.sessions[sessionID]
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		slog.Warn("failed to encode chunk for watchers", "session_id", sessionID, "error", err)
		return
	}
	for _, sub := range subs {
		select {
		case sub.Send <- data:
		default:
			slog.Warn("watch subscriber buffer full, dropping", "subscriber_id", sub.ID, "session_id", sessionID)
			h.removeLocked(sub)
		}
	}
}

// CloseSession drops every subscriber of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.sessions[sessionID] {
		h.removeLocked(sub)
	}
}

// SubscriberCount returns the number of subscribers of sessionID.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}
