package identity

import "context"

// NotifyKind names an out-of-band message sent to an identity.
type NotifyKind string

const (
	NotifyWelcome NotifyKind = "welcome"
	NotifyLogout  NotifyKind = "logout"
)

// Notifier delivers lifecycle messages. Delivery is best effort from the
// caller's point of view.
type Notifier interface {
	Notify(ctx context.Context, kind NotifyKind, email string, data map[string]string) error
}

// NoopNotifier drops every message.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, NotifyKind, string, map[string]string) error { return nil }
