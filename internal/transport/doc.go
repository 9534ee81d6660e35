// Package transport carries protocol frames between host and signer. Frames
// travel wrapped in ISO 7816-4 APDUs, the unit an NFC reader exchanges with
// a card; the websocket bridge mirrors that framing for the simulator, and
// the loopback delivers frames in memory for tests.
package transport
