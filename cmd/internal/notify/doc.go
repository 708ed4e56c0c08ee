// Package notify delivers session lifecycle messages (welcome, logout) to
// identities. It implements identity.Notifier with a structured-log sink for
// development and a Postmark sink for production.
package notify
