package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"coldtap/internal/domain"
)

// ErrPath rejects malformed derivation paths.
var ErrPath = errors.New("wallet: invalid derivation path")

// parsePath turns "m/84'/1'/0'" (or the h-suffix form) into child indexes.
func parsePath(path string) ([]uint32, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(path), "m")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		hard := false
		if strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H") {
			hard = true
			p = p[:len(p)-1]
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil || n >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: %q", ErrPath, path)
		}
		idx := uint32(n)
		if hard {
			idx = hardened(idx)
		}
		out = append(out, idx)
	}
	return out, nil
}

// formatPath renders child indexes with h-suffix hardened markers.
func formatPath(path []uint32) string {
	var b strings.Builder
	for _, step := range path {
		b.WriteByte('/')
		if step >= hdkeychain.HardenedKeyStart {
			fmt.Fprintf(&b, "%dh", step-hdkeychain.HardenedKeyStart)
		} else {
			fmt.Fprintf(&b, "%d", step)
		}
	}
	return b.String()
}

// XpubAt derives the extended public key at path and returns it with its
// key-attestation record: the derived key signs the attestation so a
// coordinator can verify the xpub really came from this device.
func (w *Wallet) XpubAt(path string) (string, domain.BsmsRound1, error) {
	if w.master == nil {
		return "", domain.BsmsRound1{}, ErrLocked
	}
	steps, err := parsePath(path)
	if err != nil {
		return "", domain.BsmsRound1{}, err
	}
	derived, err := deriveAt(w.master, steps)
	if err != nil {
		return "", domain.BsmsRound1{}, err
	}
	neutered, err := derived.Neuter()
	if err != nil {
		return "", domain.BsmsRound1{}, err
	}
	fp, err := w.Fingerprint()
	if err != nil {
		return "", domain.BsmsRound1{}, err
	}
	xpub := fmt.Sprintf("[%s%s]%s", hex.EncodeToString(fp[:]), formatPath(steps), neutered.String())

	fpWord, err := w.fingerprintUint32()
	if err != nil {
		return "", domain.BsmsRound1{}, err
	}
	att := domain.BsmsRound1{
		Version:     bsmsVersion,
		Token:       "00",
		Description: fmt.Sprintf("Coldtap %08X", fpWord),
	}
	priv, err := derived.ECPrivKey()
	if err != nil {
		return "", domain.BsmsRound1{}, err
	}
	digest := sha256.Sum256([]byte(att.Version + "|" + att.Token + "|" + att.Description + "|" + xpub))
	att.Signature = ecdsa.Sign(priv, digest[:]).Serialize()
	return xpub, att, nil
}

// containsLocalKey checks whether a descriptor references this wallet: the
// master fingerprint in a key origin, or the account xpub itself.
func (w *Wallet) containsLocalKey(descriptor string) (bool, error) {
	fp, err := w.Fingerprint()
	if err != nil {
		return false, err
	}
	if strings.Contains(strings.ToLower(descriptor), hex.EncodeToString(fp[:])) {
		return true, nil
	}
	account, err := w.accountKey()
	if err != nil {
		return false, err
	}
	neutered, err := account.Neuter()
	if err != nil {
		return false, err
	}
	return strings.Contains(descriptor, neutered.String()), nil
}
