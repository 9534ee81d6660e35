package device

import (
	"fmt"

	"github.com/rs/zerolog"

	"coldtap/internal/domain"
)

// Version is reported in GetInfo responses.
const Version = "0.1.0"

// pendingOp is the multi-step command currently in flight. It survives the
// gap between taps so the host can query it with Resume.
type pendingOp uint8

const (
	pendingNone pendingOp = iota
	pendingSignPsbt
	pendingFirmware
)

func (p pendingOp) String() string {
	switch p {
	case pendingSignPsbt:
		return "sign_psbt"
	case pendingFirmware:
		return "fw_update"
	}
	return ""
}

// Dispatcher executes commands against the wallet and firmware capabilities,
// enforcing the state machine and the one-pending-operation rule. Every
// command yields exactly one response; failures become structured ErrorReply
// values, never torn sessions.
type Dispatcher struct {
	wallet   domain.Wallet
	confirm  domain.Confirmer
	firmware domain.FirmwareStore
	pairings domain.PairingStore
	log      zerolog.Logger

	pending pendingOp
}

// NewDispatcher wires the dispatcher to its capabilities.
func NewDispatcher(w domain.Wallet, c domain.Confirmer, fw domain.FirmwareStore, p domain.PairingStore, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		wallet:   w,
		confirm:  c,
		firmware: fw,
		pairings: p,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// State derives the device state from the wallet.
func (d *Dispatcher) State() domain.DeviceState {
	if !d.wallet.Initialized() {
		return domain.StateUninitialized
	}
	if _, unlocked := d.wallet.Network(); unlocked {
		return domain.StateUnlocked
	}
	return domain.StateLocked
}

// Pending names the in-flight multi-step operation, or "" when idle.
func (d *Dispatcher) Pending() string { return d.pending.String() }

func errReply(kind domain.ErrorKind, format string, args ...any) domain.ErrorReply {
	return domain.ErrorReply{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ask runs a confirmation prompt. The (response, ok) pair carries the refusal
// reply when the user denied or the display failed.
func (d *Dispatcher) ask(prompt domain.Confirmation) (domain.Response, bool) {
	approved, err := d.confirm.Confirm(prompt)
	if err != nil {
		return errReply(domain.ErrKindCapability, "confirmation failed: %v", err), false
	}
	if !approved {
		return errReply(domain.ErrKindDenied, "%s: rejected on device", prompt.Title), false
	}
	return nil, true
}

// Handle executes one command and returns its response. endSession reports
// that the command succeeded and invalidated the session itself (wipe erases
// the pairing the session is bound to), so the caller must tear the channel
// down after delivering the reply.
func (d *Dispatcher) Handle(cmd domain.Command) (resp domain.Response, endSession bool) {
	resp = d.dispatch(cmd)
	if _, isWipe := cmd.(domain.Wipe); isWipe {
		if _, ok := resp.(domain.Ok); ok {
			return resp, true
		}
	}
	return resp, false
}

func (d *Dispatcher) dispatch(cmd domain.Command) domain.Response {
	state := d.State()
	d.log.Debug().Str("command", commandName(cmd)).Str("state", state.String()).Msg("dispatch")

	if err := checkState(cmd, state); err != nil {
		return errReply(domain.ErrKindState, "%v", err)
	}

	// A begun signing flow admits only its continuation, status queries and
	// the commands that explicitly abandon it.
	if d.pending == pendingSignPsbt {
		switch cmd.(type) {
		case domain.SignPsbt, domain.GetInfo, domain.Resume, domain.Lock, domain.Wipe:
		default:
			return errReply(domain.ErrKindBusy, "signing in progress, send sign_psbt or resume")
		}
	}

	switch c := cmd.(type) {
	case domain.GetInfo:
		return d.handleGetInfo()
	case domain.GenerateMnemonic:
		return d.handleGenerate(c)
	case domain.RestoreMnemonic:
		return d.handleRestore(c)
	case domain.ShowMnemonic:
		return d.handleShowMnemonic()
	case domain.Unlock:
		if err := d.wallet.Unlock(c.Passphrase); err != nil {
			return errReply(domain.ErrKindCapability, "%v", err)
		}
		return domain.Ok{}
	case domain.Lock:
		d.wallet.Lock()
		// Locking abandons a begun signing flow; a staged firmware transfer
		// survives, it holds no secrets.
		if d.pending == pendingSignPsbt {
			d.pending = pendingNone
		}
		return domain.Ok{}
	case domain.Resume:
		return domain.ResumeInfo{Pending: d.pending.String()}
	case domain.DisplayAddress:
		return d.handleDisplayAddress(c)
	case domain.BeginSignPsbt:
		d.pending = pendingSignPsbt
		return domain.Ok{}
	case domain.SignPsbt:
		return d.handleSignPsbt(c)
	case domain.PublicDescriptors:
		external, internal, err := d.wallet.Descriptors()
		if err != nil {
			return errReply(domain.ErrKindCapability, "%v", err)
		}
		return domain.DescriptorsReply{External: external, Internal: internal}
	case domain.GetXpub:
		return d.handleGetXpub(c)
	case domain.SetDescriptor:
		return d.handleSetDescriptor(c)
	case domain.FwUpdateStart:
		next, err := d.firmware.Begin(c.Size, c.Checksum)
		if err != nil {
			return errReply(domain.ErrKindCapability, "%v", err)
		}
		d.pending = pendingFirmware
		return domain.FwProgress{NextOffset: next}
	case domain.FwUpdateChunk:
		next, err := d.firmware.Append(c.Offset, c.Data)
		if err != nil {
			return errReply(domain.ErrKindCapability, "%v", err)
		}
		return domain.FwProgress{NextOffset: next}
	case domain.FwUpdateFinish:
		if err := d.firmware.Finish(); err != nil {
			return errReply(domain.ErrKindCapability, "%v", err)
		}
		d.pending = pendingNone
		d.log.Info().Msg("firmware staged")
		return domain.Ok{}
	case domain.Wipe:
		return d.handleWipe()
	}
	return errReply(domain.ErrKindProtocol, "unhandled command %s", commandName(cmd))
}

func (d *Dispatcher) handleGetInfo() domain.Response {
	info := domain.Info{
		Initialized: d.wallet.Initialized(),
		Version:     Version,
	}
	if network, unlocked := d.wallet.Network(); unlocked {
		info.Unlocked = true
		info.Network = network
		if fp, err := d.wallet.Fingerprint(); err == nil {
			info.Fingerprint = fp[:]
		}
	}
	return info
}

func (d *Dispatcher) handleGenerate(c domain.GenerateMnemonic) domain.Response {
	prompt := domain.Confirmation{
		Title: "Create new wallet",
		Lines: []string{
			fmt.Sprintf("%d words", c.Words),
			fmt.Sprintf("network: %s", c.Network),
		},
	}
	if resp, ok := d.ask(prompt); !ok {
		return resp
	}
	mnemonic, err := d.wallet.Generate(c.Words, c.Network, c.Passphrase)
	if err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	return domain.MnemonicWords{Mnemonic: mnemonic}
}

func (d *Dispatcher) handleRestore(c domain.RestoreMnemonic) domain.Response {
	prompt := domain.Confirmation{
		Title: "Restore wallet",
		Lines: []string{fmt.Sprintf("network: %s", c.Network)},
	}
	if resp, ok := d.ask(prompt); !ok {
		return resp
	}
	if err := d.wallet.Restore(c.Mnemonic, c.Network, c.Passphrase); err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	return domain.Ok{}
}

func (d *Dispatcher) handleShowMnemonic() domain.Response {
	prompt := domain.Confirmation{
		Title: "Show recovery phrase",
		Lines: []string{"reveals all wallet secrets"},
	}
	if resp, ok := d.ask(prompt); !ok {
		return resp
	}
	mnemonic, err := d.wallet.Mnemonic()
	if err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	return domain.MnemonicWords{Mnemonic: mnemonic}
}

func (d *Dispatcher) handleDisplayAddress(c domain.DisplayAddress) domain.Response {
	addr, err := d.wallet.Address(c.Index)
	if err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	prompt := domain.Confirmation{
		Title: "Verify address",
		Lines: []string{fmt.Sprintf("index %d", c.Index), addr},
	}
	if resp, ok := d.ask(prompt); !ok {
		return resp
	}
	return domain.AddressReply{Index: c.Index, Address: addr}
}

func (d *Dispatcher) handleSignPsbt(c domain.SignPsbt) domain.Response {
	if d.pending != pendingSignPsbt {
		return errReply(domain.ErrKindState, "sign_psbt without begin_sign_psbt")
	}
	// The flow ends here whatever the outcome; a retry begins anew.
	d.pending = pendingNone

	signed, summary, err := d.wallet.SignPsbt(c.Psbt)
	if err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	lines := make([]string, 0, len(summary.Outputs)+1)
	for _, out := range summary.Outputs {
		lines = append(lines, fmt.Sprintf("%d sats to %s", out.Sats, out.Address))
	}
	lines = append(lines, fmt.Sprintf("fee %d sats", summary.FeeSats))
	if resp, ok := d.ask(domain.Confirmation{Title: "Sign transaction", Lines: lines}); !ok {
		return resp
	}
	d.log.Info().Uint64("fee_sats", summary.FeeSats).Int("outputs", len(summary.Outputs)).Msg("psbt signed")
	return domain.SignedPsbt{Psbt: signed}
}

func (d *Dispatcher) handleGetXpub(c domain.GetXpub) domain.Response {
	prompt := domain.Confirmation{
		Title: "Export public key",
		Lines: []string{c.Path},
	}
	if resp, ok := d.ask(prompt); !ok {
		return resp
	}
	xpub, bsms, err := d.wallet.XpubAt(c.Path)
	if err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	return domain.XpubReply{Xpub: xpub, Bsms: bsms}
}

func (d *Dispatcher) handleSetDescriptor(c domain.SetDescriptor) domain.Response {
	lines := []string{c.Descriptor}
	if c.FirstAddress != "" {
		lines = append(lines, "first address: "+c.FirstAddress)
	}
	if resp, ok := d.ask(domain.Confirmation{Title: "Apply descriptor", Lines: lines}); !ok {
		return resp
	}
	if err := d.wallet.ApplyDescriptor(c.Descriptor); err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	return domain.Ok{}
}

func (d *Dispatcher) handleWipe() domain.Response {
	prompt := domain.Confirmation{
		Title: "Wipe device",
		Lines: []string{"erases wallet and all pairings"},
	}
	if resp, ok := d.ask(prompt); !ok {
		return resp
	}
	if err := d.wallet.Wipe(); err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	if err := d.pairings.DeleteAll(); err != nil {
		return errReply(domain.ErrKindCapability, "%v", err)
	}
	_ = d.firmware.Abort()
	d.pending = pendingNone
	d.log.Warn().Msg("device wiped")
	return domain.Ok{}
}
