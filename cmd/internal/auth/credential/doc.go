// Package credential mints and verifies the signed, time-bound token pairs
// handed to clients after authentication.
//
// A Pair holds a short-lived access token and a long-lived refresh token.
// Both embed the same Payload, are signed with separate keys and carry a
// random jti so two pairs minted in the same second differ. Verification is
// purely cryptographic: it never consults session storage. A successful
// Verify yields a Verified value, the only way the rest of the service
// learns who a token belongs to.
//
// Two formats are supported: HS256 JWT (default) and PASETO v4.public.
package credential
