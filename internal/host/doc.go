// Package host drives the host side of the channel: handshake, pairing
// persistence with trust-on-first-use signer pinning, and typed command
// round trips over any frame transport.
package host
