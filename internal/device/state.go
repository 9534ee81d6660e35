package device

import (
	"fmt"

	"coldtap/internal/domain"
)

// stateRule is the admission requirement for one command type.
type stateRule uint8

const (
	// anyState admits the command regardless of wallet state.
	anyState stateRule = iota
	// needUninitialized admits only before a wallet secret exists.
	needUninitialized
	// needLocked admits only when a secret exists but is not in memory.
	needLocked
	// needUnlocked admits only with the secret in working memory.
	needUnlocked
)

// ruleFor is total over the command set: every command has exactly one
// admission rule, checked before any side effect.
func ruleFor(cmd domain.Command) stateRule {
	switch cmd.(type) {
	case domain.GetInfo, domain.Resume:
		return anyState
	case domain.GenerateMnemonic, domain.RestoreMnemonic:
		return needUninitialized
	case domain.Unlock:
		return needLocked
	case domain.Lock:
		return needUnlocked
	case domain.ShowMnemonic, domain.DisplayAddress,
		domain.BeginSignPsbt, domain.SignPsbt,
		domain.PublicDescriptors, domain.GetXpub, domain.SetDescriptor:
		return needUnlocked
	case domain.FwUpdateStart, domain.FwUpdateChunk, domain.FwUpdateFinish:
		return anyState
	case domain.Wipe:
		// Wipe is reachable from every state; on an already-empty device it
		// still clears pairings and staged firmware.
		return anyState
	}
	// Unknown commands never reach here: the wire decoder rejects them.
	return needUnlocked
}

// checkState admits or rejects cmd for the current state. The returned error
// text is host-facing.
func checkState(cmd domain.Command, s domain.DeviceState) error {
	ok := false
	switch ruleFor(cmd) {
	case anyState:
		ok = true
	case needUninitialized:
		ok = s == domain.StateUninitialized
	case needLocked:
		ok = s == domain.StateLocked
	case needUnlocked:
		ok = s == domain.StateUnlocked
	}
	if ok {
		return nil
	}
	return fmt.Errorf("%s not permitted while %s", commandName(cmd), s)
}

func commandName(cmd domain.Command) string {
	switch cmd.(type) {
	case domain.GetInfo:
		return "get_info"
	case domain.GenerateMnemonic:
		return "generate_mnemonic"
	case domain.RestoreMnemonic:
		return "restore_mnemonic"
	case domain.ShowMnemonic:
		return "show_mnemonic"
	case domain.Unlock:
		return "unlock"
	case domain.Lock:
		return "lock"
	case domain.Resume:
		return "resume"
	case domain.DisplayAddress:
		return "display_address"
	case domain.BeginSignPsbt:
		return "begin_sign_psbt"
	case domain.SignPsbt:
		return "sign_psbt"
	case domain.PublicDescriptors:
		return "public_descriptors"
	case domain.GetXpub:
		return "get_xpub"
	case domain.SetDescriptor:
		return "set_descriptor"
	case domain.FwUpdateStart:
		return "fw_update_start"
	case domain.FwUpdateChunk:
		return "fw_update_chunk"
	case domain.FwUpdateFinish:
		return "fw_update_finish"
	case domain.Wipe:
		return "wipe"
	}
	return fmt.Sprintf("%T", cmd)
}
