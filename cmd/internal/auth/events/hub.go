package events

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is an in-memory per-identity fanout. Publish never blocks: a full
// subscriber queue drops the event for that subscriber.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

var _ Publisher = (*Hub)(nil)

// NewHub constructs a Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, subs: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a listener for identityID bound to sessionID.
func (h *Hub) Subscribe(identityID, sessionID string, queue int) *Subscriber {
	s := newSubscriber(identityID, sessionID, queue)

	h.mu.Lock()
	set, ok := h.subs[identityID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[identityID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("events.subscribe", "identity_id", identityID, "session_id", sessionID)
	return s
}

// Unsubscribe removes s and closes its Done channel. Idempotent.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}

	h.mu.Lock()
	if set := h.subs[s.IdentityID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.IdentityID)
		}
	}
	h.mu.Unlock()

	// Close after removal so no publisher still holds s.
	s.close()
}

// Publish delivers e to every subscriber of e.IdentityID.
func (h *Hub) Publish(_ context.Context, e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[e.IdentityID] {
		select {
		case <-s.done:
			continue
		default:
		}

		select {
		case s.Send <- e:
		default:
			h.log.Warn("events.drop", "identity_id", e.IdentityID, "session_id", s.SessionID, "kind", e.Kind)
		}
	}
}

// Subscribers returns the number of listeners for identityID.
func (h *Hub) Subscribers(identityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[identityID])
}
