package events

import (
	"context"
	"time"
)

// Kind classifies an Event.
type Kind string

const (
	// KindRevoked means one session (SessionID set) or every session of the
	// identity (SessionID empty) was deleted.
	KindRevoked Kind = "revoked"

	// KindRotated means SessionID was replaced by a refresh.
	KindRotated Kind = "rotated"
)

// Event is published after a session change has been persisted.
type Event struct {
	Kind       Kind      `json:"kind"`
	IdentityID string    `json:"identityId"`
	SessionID  string    `json:"sessionId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Ends reports whether e terminates the session sessionID.
func (e Event) Ends(sessionID string) bool {
	switch e.Kind {
	case KindRevoked:
		return e.SessionID == "" || e.SessionID == sessionID
	case KindRotated:
		return e.SessionID == sessionID
	default:
		return false
	}
}

// Publisher receives events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}
