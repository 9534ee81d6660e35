package domain

// ErrorKind classifies a structured error response. Only cryptographic
// failures tear the session down; every other kind is reported through the
// channel and the session continues.
type ErrorKind string

const (
	// ErrKindProtocol covers malformed or unversioned messages and unknown
	// opcodes.
	ErrKindProtocol ErrorKind = "protocol"
	// ErrKindState means the command is not permitted in the current device
	// state. No side effects occurred.
	ErrKindState ErrorKind = "state"
	// ErrKindCapability means the wallet operation itself failed (invalid
	// PSBT, bad derivation path, ...).
	ErrKindCapability ErrorKind = "capability"
	// ErrKindDenied means the user rejected the on-device confirmation.
	ErrKindDenied ErrorKind = "denied"
	// ErrKindBusy means a multi-step command is pending and must be continued
	// or abandoned first.
	ErrKindBusy ErrorKind = "busy"
)
