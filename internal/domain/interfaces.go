package domain

import "context"

// Wallet is the key-management capability the dispatcher invokes. The
// protocol core treats it as an external collaborator: it never inspects
// secrets, only routes typed requests and results.
type Wallet interface {
	// Generate creates a fresh mnemonic, encrypts the secret under
	// passphrase and returns the mnemonic for on-device display.
	Generate(words int, network Network, passphrase string) (string, error)
	// Restore imports an existing mnemonic.
	Restore(mnemonic string, network Network, passphrase string) error
	// Unlock decrypts the secret into working memory.
	Unlock(passphrase string) error
	// Lock zeroes the working-memory secret.
	Lock()
	// Wipe erases the persisted secret entirely.
	Wipe() error

	Initialized() bool
	Network() (Network, bool)
	// Fingerprint is the BIP32 master key fingerprint. Requires unlock.
	Fingerprint() ([4]byte, error)
	// Mnemonic returns the stored mnemonic. Requires unlock.
	Mnemonic() (string, error)

	Address(index uint32) (string, error)
	Descriptors() (external, internal string, err error)
	XpubAt(path string) (xpub string, attestation BsmsRound1, err error)
	// SignPsbt signs the inputs it owns and returns the updated PSBT, plus a
	// human-readable summary for display.
	SignPsbt(raw []byte) (signed []byte, summary SignSummary, err error)
	// ApplyDescriptor validates that the descriptor includes a key owned by
	// this wallet and persists it as the active policy.
	ApplyDescriptor(descriptor string) error
}

// SignSummary is what the device shows before approving a signature.
type SignSummary struct {
	Outputs []SignOutput
	FeeSats uint64
}

// SignOutput is one non-change output of the transaction under review.
type SignOutput struct {
	Address string
	Sats    uint64
}

// Confirmer is the display/confirmation boundary. Commands that reveal
// secrets or move funds proceed only after an affirmative result.
type Confirmer interface {
	Confirm(prompt Confirmation) (bool, error)
}

// Confirmation describes what the device must display for approval.
type Confirmation struct {
	Title string
	Lines []string
}

// PairingStore persists pairing records across power cycles.
type PairingStore interface {
	SavePairing(rec PairingRecord) error
	LoadPairing(id string) (PairingRecord, bool, error)
	// FindByHostStatic returns the confirmed record for a host key, if any.
	FindByHostStatic(pub X25519Public) (PairingRecord, bool, error)
	DeleteAll() error
}

// SecretStore persists the encrypted wallet secret.
type SecretStore interface {
	SaveSecret(passphrase string, plaintext []byte) error
	LoadSecret(passphrase string) ([]byte, error)
	Exists() bool
	Delete() error
}

// FirmwareStore stages firmware bytes during a chunked transfer.
type FirmwareStore interface {
	// Begin stages a transfer; a matching in-progress checksum resumes it
	// and returns the next expected offset.
	Begin(size uint32, checksum []byte) (nextOffset uint32, err error)
	Append(offset uint32, data []byte) (nextOffset uint32, err error)
	// Finish verifies the checksum over the staged bytes.
	Finish() error
	Abort() error
}

// Transport is the host-side frame boundary. The only guarantee is in-order
// delivery of frames up to Capacity bytes while a tap is sustained; a poll
// that yields no frame is not an error.
type Transport interface {
	SendFrame(ctx context.Context, frame []byte) error
	PollFrame(ctx context.Context) (frame []byte, ok bool, err error)
	Capacity() int
	Close() error
}
