// Package authapi exposes the session lifecycle over HTTP: sign-up, sign-in,
// refresh, logout, logout from all devices, the current identity and a
// WebSocket feed of session events.
package authapi
