// Package password hashes and verifies identity passwords with Argon2id.
//
// Hashes use the PHC string format
// ($argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>) so parameters can be
// raised later without invalidating stored hashes. Stored hashes are treated
// as untrusted input on Verify and rejected when their cost parameters are far
// above the configured ones.
package password
