// Package commands defines the coldtap CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - pair            Handshake with a signer and pin its identity
//   - info            Print device status
//   - generate        Create a fresh wallet on the device
//   - restore         Import a mnemonic onto the device
//   - show-mnemonic   Reveal the mnemonic after on-device confirmation
//   - unlock / lock   Move the wallet secret in and out of device memory
//   - address         Display and verify a receive address
//   - sign            Sign a PSBT file
//   - descriptors     Print the watch-only descriptors
//   - xpub            Export an attested extended public key
//   - set-descriptor  Apply a wallet descriptor
//   - fw-update       Stream a firmware image to the device
//   - resume          Query the pending multi-step operation
//   - wipe            Erase the device
//
// # Implementation
//
// The root command loads TOML config and builds the host dependency graph
// before any subcommand runs. Each subcommand dials the signer bridge,
// handshakes (prompting for the pairing code on first contact) and runs its
// command through the secure channel.
package commands
