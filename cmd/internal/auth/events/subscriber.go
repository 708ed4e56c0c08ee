package events

import "sync"

// Subscriber is one listener for an identity's events.
//
// Send is never closed by the hub, so a concurrent Publish cannot panic;
// Done signals shutdown instead.
type Subscriber struct {
	IdentityID string
	SessionID  string
	Send       chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(identityID, sessionID string, queue int) *Subscriber {
	if queue <= 0 {
		queue = 16
	}
	return &Subscriber{
		IdentityID: identityID,
		SessionID:  sessionID,
		Send:       make(chan Event, queue),
		done:       make(chan struct{}),
	}
}

// Done is closed once the subscriber is removed from the hub.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
