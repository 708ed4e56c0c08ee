// Package events fans session lifecycle events out to in-process
// subscribers, keyed by identity. The HTTP layer streams them to clients over
// WebSocket.
package events
