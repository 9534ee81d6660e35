// Package device is the signer-side protocol core: a reactive engine that
// turns incoming frames into handshake progress or dispatched commands, and a
// dispatcher that enforces the device state machine over the wallet,
// firmware and pairing capabilities.
package device
