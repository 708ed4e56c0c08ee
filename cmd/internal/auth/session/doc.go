// Package session implements the session lifecycle of sessiond.
//
// A session is one persisted Record per device holding the digests of an
// access/refresh token pair. The Manager issues records on sign-up and
// sign-in, rotates them on refresh and deletes them on logout. Rotation is
// exactly-once: the Store's conditional Rotate deletes the record holding a
// refresh token and inserts its replacement atomically, so a refresh token
// can mint at most one new pair.
//
// Tokens are never stored in plain text; records keep keyed digests from
// security/token. Store backends: memory, PostgreSQL, Redis and MongoDB.
package session
