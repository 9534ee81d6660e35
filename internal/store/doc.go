// Package store persists signer state on disk: pairing records, the
// encrypted wallet secret and staged firmware transfers. Secrets are sealed
// in a scrypt/ChaCha20-Poly1305 envelope keyed by the device passphrase.
package store
