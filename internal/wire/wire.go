// Package wire is the versioned binary encoding for command and response
// payloads. Messages are CBOR envelopes carrying a version, an opcode and an
// opcode-specific body; decoding is strict, so unknown required fields are
// rejected rather than silently ignored, while absent optional fields keep
// forward compatibility with older peers.
package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"coldtap/internal/domain"
)

// Version is the current wire version. Peers speaking a different version
// are rejected with ErrVersion before any body decoding happens.
const Version = 1

// Opcode identifies the command or response type on the wire.
type Opcode uint8

const (
	OpGetInfo Opcode = iota + 1
	OpGenerateMnemonic
	OpRestoreMnemonic
	OpShowMnemonic
	OpUnlock
	OpLock
	OpResume
	OpDisplayAddress
	OpBeginSignPsbt
	OpSignPsbt
	OpPublicDescriptors
	OpGetXpub
	OpSetDescriptor
	OpFwUpdateStart
	OpFwUpdateChunk
	OpFwUpdateFinish
	OpWipe
)

const (
	OpOk Opcode = iota + 0x81
	OpInfo
	OpMnemonicWords
	OpAddress
	OpSignedPsbt
	OpDescriptors
	OpXpub
	OpFwProgress
	OpResumeInfo
	OpError
)

// Message class, the first byte of every reassembled message. It routes the
// rest of the bytes to either the handshake or the secure channel.
const (
	ClassHandshake byte = 0x00
	ClassSealed    byte = 0x01
)

var (
	// ErrVersion means the envelope carries an unsupported wire version.
	ErrVersion = errors.New("wire: unsupported version")
	// ErrUnknownOpcode means the opcode is not part of the known set.
	ErrUnknownOpcode = errors.New("wire: unknown opcode")
)

type envelope struct {
	V    uint8           `cbor:"v"`
	Op   uint8           `cbor:"op"`
	Body cbor.RawMessage `cbor:"body,omitempty"`
}

// Strict decode mode: unknown fields in a body are an error, matching the
// contract that decoders reject unknown required fields.
var decMode, _ = cbor.DecOptions{
	ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
}.DecMode()

func seal(op Opcode, body any) ([]byte, error) {
	var raw cbor.RawMessage
	if body != nil {
		b, err := cbor.Marshal(body)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return cbor.Marshal(envelope{V: Version, Op: uint8(op), Body: raw})
}

func open(data []byte) (Opcode, cbor.RawMessage, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return 0, nil, fmt.Errorf("wire: envelope: %w", err)
	}
	if env.V != Version {
		return 0, nil, ErrVersion
	}
	return Opcode(env.Op), env.Body, nil
}

func decodeBody(body cbor.RawMessage, v any) error {
	if len(body) == 0 {
		return nil
	}
	return decMode.Unmarshal(body, v)
}

// EncodeCommand serializes a command into its wire envelope.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	switch c := cmd.(type) {
	case domain.GetInfo:
		return seal(OpGetInfo, nil)
	case domain.GenerateMnemonic:
		return seal(OpGenerateMnemonic, c)
	case domain.RestoreMnemonic:
		return seal(OpRestoreMnemonic, c)
	case domain.ShowMnemonic:
		return seal(OpShowMnemonic, nil)
	case domain.Unlock:
		return seal(OpUnlock, c)
	case domain.Lock:
		return seal(OpLock, nil)
	case domain.Resume:
		return seal(OpResume, nil)
	case domain.DisplayAddress:
		return seal(OpDisplayAddress, c)
	case domain.BeginSignPsbt:
		return seal(OpBeginSignPsbt, nil)
	case domain.SignPsbt:
		return seal(OpSignPsbt, c)
	case domain.PublicDescriptors:
		return seal(OpPublicDescriptors, nil)
	case domain.GetXpub:
		return seal(OpGetXpub, c)
	case domain.SetDescriptor:
		return seal(OpSetDescriptor, c)
	case domain.FwUpdateStart:
		return seal(OpFwUpdateStart, c)
	case domain.FwUpdateChunk:
		return seal(OpFwUpdateChunk, c)
	case domain.FwUpdateFinish:
		return seal(OpFwUpdateFinish, nil)
	case domain.Wipe:
		return seal(OpWipe, nil)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownOpcode, cmd)
}

// DecodeCommand parses a wire envelope into a typed command.
func DecodeCommand(data []byte) (domain.Command, error) {
	op, body, err := open(data)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpGetInfo:
		return domain.GetInfo{}, nil
	case OpGenerateMnemonic:
		var c domain.GenerateMnemonic
		err = decodeBody(body, &c)
		return c, err
	case OpRestoreMnemonic:
		var c domain.RestoreMnemonic
		err = decodeBody(body, &c)
		return c, err
	case OpShowMnemonic:
		return domain.ShowMnemonic{}, nil
	case OpUnlock:
		var c domain.Unlock
		err = decodeBody(body, &c)
		return c, err
	case OpLock:
		return domain.Lock{}, nil
	case OpResume:
		return domain.Resume{}, nil
	case OpDisplayAddress:
		var c domain.DisplayAddress
		err = decodeBody(body, &c)
		return c, err
	case OpBeginSignPsbt:
		return domain.BeginSignPsbt{}, nil
	case OpSignPsbt:
		var c domain.SignPsbt
		err = decodeBody(body, &c)
		return c, err
	case OpPublicDescriptors:
		return domain.PublicDescriptors{}, nil
	case OpGetXpub:
		var c domain.GetXpub
		err = decodeBody(body, &c)
		return c, err
	case OpSetDescriptor:
		var c domain.SetDescriptor
		err = decodeBody(body, &c)
		return c, err
	case OpFwUpdateStart:
		var c domain.FwUpdateStart
		err = decodeBody(body, &c)
		return c, err
	case OpFwUpdateChunk:
		var c domain.FwUpdateChunk
		err = decodeBody(body, &c)
		return c, err
	case OpFwUpdateFinish:
		return domain.FwUpdateFinish{}, nil
	case OpWipe:
		return domain.Wipe{}, nil
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, uint8(op))
}

// EncodeResponse serializes a response into its wire envelope.
func EncodeResponse(resp domain.Response) ([]byte, error) {
	switch r := resp.(type) {
	case domain.Ok:
		return seal(OpOk, nil)
	case domain.Info:
		return seal(OpInfo, r)
	case domain.MnemonicWords:
		return seal(OpMnemonicWords, r)
	case domain.AddressReply:
		return seal(OpAddress, r)
	case domain.SignedPsbt:
		return seal(OpSignedPsbt, r)
	case domain.DescriptorsReply:
		return seal(OpDescriptors, r)
	case domain.XpubReply:
		return seal(OpXpub, r)
	case domain.FwProgress:
		return seal(OpFwProgress, r)
	case domain.ResumeInfo:
		return seal(OpResumeInfo, r)
	case domain.ErrorReply:
		return seal(OpError, r)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownOpcode, resp)
}

// DecodeResponse parses a wire envelope into a typed response.
func DecodeResponse(data []byte) (domain.Response, error) {
	op, body, err := open(data)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpOk:
		return domain.Ok{}, nil
	case OpInfo:
		var r domain.Info
		err = decodeBody(body, &r)
		return r, err
	case OpMnemonicWords:
		var r domain.MnemonicWords
		err = decodeBody(body, &r)
		return r, err
	case OpAddress:
		var r domain.AddressReply
		err = decodeBody(body, &r)
		return r, err
	case OpSignedPsbt:
		var r domain.SignedPsbt
		err = decodeBody(body, &r)
		return r, err
	case OpDescriptors:
		var r domain.DescriptorsReply
		err = decodeBody(body, &r)
		return r, err
	case OpXpub:
		var r domain.XpubReply
		err = decodeBody(body, &r)
		return r, err
	case OpFwProgress:
		var r domain.FwProgress
		err = decodeBody(body, &r)
		return r, err
	case OpResumeInfo:
		var r domain.ResumeInfo
		err = decodeBody(body, &r)
		return r, err
	case OpError:
		var r domain.ErrorReply
		err = decodeBody(body, &r)
		return r, err
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, uint8(op))
}
