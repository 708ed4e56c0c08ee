// Package identity is the identity boundary of sessiond.
//
// It owns the identity record (email, name, role, password hash), the
// Directory that persists it, and the Notifier kinds dispatched on session
// lifecycle events. The session core only talks to this package through the
// Directory and Notifier interfaces.
package identity
