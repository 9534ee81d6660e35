// Package app wires application dependencies for the CLIs.
//
// It loads TOML configuration and builds the concrete stores, wallet, engine
// and host client from Config, exposing them via the SignerWire and HostWire
// structs for commands to use.
package app
