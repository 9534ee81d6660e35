package domain

// Command is the closed set of host-originated requests. Adding an opcode is
// a compile-time-checked change: the dispatcher switches exhaustively over
// these types.
type Command interface{ isCommand() }

// Response is the closed set of signer replies. Every Command receives
// exactly one Response before the next command is accepted.
type Response interface{ isResponse() }

// --- commands ---

// GetInfo asks for device status. Allowed in every state.
type GetInfo struct{}

// GenerateMnemonic creates a fresh wallet secret on an uninitialized device.
type GenerateMnemonic struct {
	Words      int     `cbor:"words"`
	Network    Network `cbor:"network"`
	Passphrase string  `cbor:"passphrase,omitempty"`
}

// RestoreMnemonic imports an existing mnemonic on an uninitialized device.
type RestoreMnemonic struct {
	Mnemonic   string  `cbor:"mnemonic"`
	Network    Network `cbor:"network"`
	Passphrase string  `cbor:"passphrase,omitempty"`
}

// ShowMnemonic asks the device to display the mnemonic after physical
// confirmation. The words are also returned to the host for verification
// flows; the command requires Unlocked.
type ShowMnemonic struct{}

// Unlock decrypts the wallet secret into working memory.
type Unlock struct {
	Passphrase string `cbor:"passphrase"`
}

// Lock zeroes the working-memory secret.
type Lock struct{}

// Resume reports the pending multi-step operation, if any, so the host can
// continue after a physical interruption (card removed between taps).
type Resume struct{}

// DisplayAddress shows address Index on the device and returns it.
type DisplayAddress struct {
	Index uint32 `cbor:"index"`
}

// BeginSignPsbt announces that the next command will carry PSBT bytes.
type BeginSignPsbt struct{}

// SignPsbt carries the PSBT to sign. Only valid after BeginSignPsbt.
type SignPsbt struct {
	Psbt []byte `cbor:"psbt"`
}

// PublicDescriptors requests the wallet's watch-only descriptors.
type PublicDescriptors struct{}

// GetXpub derives an extended public key at Path and attests to it.
type GetXpub struct {
	Path string `cbor:"path"`
}

// SetDescriptor applies a wallet descriptor, optionally checking the first
// address against multisig coordination metadata.
type SetDescriptor struct {
	Descriptor   string `cbor:"descriptor"`
	FirstAddress string `cbor:"first_address,omitempty"`
}

// FwUpdateStart stages a firmware transfer of Size bytes with the given
// SHA-256 checksum. Restarting with the same checksum resumes the transfer.
type FwUpdateStart struct {
	Size     uint32 `cbor:"size"`
	Checksum []byte `cbor:"checksum"`
}

// FwUpdateChunk appends firmware bytes at Offset. Offsets must be sequential.
type FwUpdateChunk struct {
	Offset uint32 `cbor:"offset"`
	Data   []byte `cbor:"data"`
}

// FwUpdateFinish verifies the staged image checksum and completes the
// transfer.
type FwUpdateFinish struct{}

// Wipe erases all secrets and returns the device to Uninitialized.
type Wipe struct{}

func (GetInfo) isCommand()           {}
func (GenerateMnemonic) isCommand()  {}
func (RestoreMnemonic) isCommand()   {}
func (ShowMnemonic) isCommand()      {}
func (Unlock) isCommand()            {}
func (Lock) isCommand()              {}
func (Resume) isCommand()            {}
func (DisplayAddress) isCommand()    {}
func (BeginSignPsbt) isCommand()     {}
func (SignPsbt) isCommand()          {}
func (PublicDescriptors) isCommand() {}
func (GetXpub) isCommand()           {}
func (SetDescriptor) isCommand()     {}
func (FwUpdateStart) isCommand()     {}
func (FwUpdateChunk) isCommand()     {}
func (FwUpdateFinish) isCommand()    {}
func (Wipe) isCommand()              {}

// --- responses ---

// Ok is the bare success reply.
type Ok struct{}

// Info reports device status.
type Info struct {
	Initialized bool    `cbor:"initialized"`
	Unlocked    bool    `cbor:"unlocked"`
	Network     Network `cbor:"network,omitempty"`
	Fingerprint []byte  `cbor:"fingerprint,omitempty"`
	Version     string  `cbor:"version"`
}

// MnemonicWords returns the mnemonic after on-device confirmation.
type MnemonicWords struct {
	Mnemonic string `cbor:"mnemonic"`
}

// AddressReply returns a displayed address.
type AddressReply struct {
	Index   uint32 `cbor:"index"`
	Address string `cbor:"address"`
}

// SignedPsbt carries the PSBT updated with the signatures the device
// produced.
type SignedPsbt struct {
	Psbt []byte `cbor:"psbt"`
}

// DescriptorsReply returns the public wallet descriptors.
type DescriptorsReply struct {
	External string `cbor:"external"`
	Internal string `cbor:"internal,omitempty"`
}

// BsmsRound1 is the key-attestation record accompanying an exported xpub.
type BsmsRound1 struct {
	Version     string `cbor:"version"`
	Token       string `cbor:"token"`
	Description string `cbor:"description"`
	Signature   []byte `cbor:"signature"`
}

// XpubReply returns a derived extended public key with its attestation.
type XpubReply struct {
	Xpub string     `cbor:"xpub"`
	Bsms BsmsRound1 `cbor:"bsms"`
}

// FwProgress reports the next expected firmware offset.
type FwProgress struct {
	NextOffset uint32 `cbor:"next_offset"`
}

// ResumeInfo names the pending multi-step operation, or is empty when idle.
type ResumeInfo struct {
	Pending string `cbor:"pending,omitempty"`
}

// ErrorReply is the structured failure response.
type ErrorReply struct {
	Kind   ErrorKind `cbor:"kind"`
	Detail string    `cbor:"detail,omitempty"`
}

func (Ok) isResponse()               {}
func (Info) isResponse()             {}
func (MnemonicWords) isResponse()    {}
func (AddressReply) isResponse()     {}
func (SignedPsbt) isResponse()       {}
func (DescriptorsReply) isResponse() {}
func (XpubReply) isResponse()        {}
func (FwProgress) isResponse()       {}
func (ResumeInfo) isResponse()       {}
func (ErrorReply) isResponse()       {}
