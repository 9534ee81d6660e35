package transport

import (
	"errors"
	"fmt"

	"github.com/skythen/apdu"
)

// Command APDU header used for every frame: proprietary class, GET DATA.
const (
	claFrame byte = 0x00
	insFrame byte = 0xCB
)

// ErrStatusWord means the card reported a non-success status.
var ErrStatusWord = errors.New("transport: non-success status word")

// wrapCommand encloses a frame in a command APDU.
func wrapCommand(frame []byte) ([]byte, error) {
	capdu := apdu.Capdu{Cla: claFrame, Ins: insFrame, Data: frame}
	return capdu.Bytes()
}

// unwrapCommand extracts the frame from a command APDU.
func unwrapCommand(raw []byte) ([]byte, error) {
	capdu, err := apdu.ParseCapdu(raw)
	if err != nil {
		return nil, err
	}
	return capdu.Data, nil
}

// wrapResponse encloses a frame in a success response APDU.
func wrapResponse(frame []byte) ([]byte, error) {
	rapdu := apdu.Rapdu{Data: frame, SW1: 0x90, SW2: 0x00}
	return rapdu.Bytes()
}

// wrapStatus builds a data-less response APDU carrying only a status word.
func wrapStatus(sw1, sw2 byte) ([]byte, error) {
	rapdu := apdu.Rapdu{SW1: sw1, SW2: sw2}
	return rapdu.Bytes()
}

// unwrapResponse extracts the frame from a response APDU, rejecting
// non-success status words.
func unwrapResponse(raw []byte) ([]byte, error) {
	rapdu, err := apdu.ParseRapdu(raw)
	if err != nil {
		return nil, err
	}
	if rapdu.SW1 != 0x90 {
		return nil, fmt.Errorf("%w: %02x%02x", ErrStatusWord, rapdu.SW1, rapdu.SW2)
	}
	return rapdu.Data, nil
}
