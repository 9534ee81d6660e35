// Package crypto wraps the low-level primitives used by the handshake and
// the secure channel: X25519 key generation and agreement, and public-key
// fingerprints.
package crypto
