// Package token provides the digest used to persist session tokens at rest.
//
// Session records never hold raw access or refresh tokens. Stores key them by
// a 64-char hex digest instead:
//   - HMAC-SHA256(token, key) when a key is configured (production).
//   - SHA-256(token) otherwise (development and tests).
//
// The key is injected through NewHasher; nothing in this package reads the
// environment.
package token
