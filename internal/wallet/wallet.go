// Package wallet is the concrete key-management capability behind the
// command dispatcher: mnemonic lifecycle, BIP32/BIP84 derivation, descriptor
// export and PSBT signing for witness-v0 single-sig inputs.
package wallet

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"
	"github.com/tyler-smith/go-bip39"

	"coldtap/internal/domain"
)

const bsmsVersion = "1.0"

var (
	// ErrNotInitialized means no wallet secret exists.
	ErrNotInitialized = errors.New("wallet: not initialized")
	// ErrAlreadyInitialized means a secret already exists; wipe first.
	ErrAlreadyInitialized = errors.New("wallet: already initialized")
	// ErrLocked means the secret is not in working memory.
	ErrLocked = errors.New("wallet: locked")
	// ErrBadPassphrase means the secret could not be decrypted.
	ErrBadPassphrase = errors.New("wallet: wrong passphrase")
	// ErrWordCount rejects mnemonic lengths outside the BIP39 set.
	ErrWordCount = errors.New("wallet: unsupported word count")
	// ErrMnemonic rejects mnemonics that fail checksum validation.
	ErrMnemonic = errors.New("wallet: invalid mnemonic")
	// ErrForeignDescriptor rejects descriptors without a local key.
	ErrForeignDescriptor = errors.New("wallet: descriptor has no local key")
)

// secret is the plaintext layout persisted (encrypted) by the secret store.
type secret struct {
	Mnemonic   string         `json:"mnemonic"`
	Network    domain.Network `json:"network"`
	Descriptor string         `json:"descriptor,omitempty"`
}

// Wallet implements domain.Wallet on top of an encrypted secret store.
// Working-memory key material exists only between Unlock and Lock.
type Wallet struct {
	store domain.SecretStore
	log   zerolog.Logger

	// present only while unlocked
	sec        *secret
	master     *hdkeychain.ExtendedKey
	params     *chaincfg.Params
	passphrase string
}

// New returns a locked wallet backed by store.
func New(store domain.SecretStore, log zerolog.Logger) *Wallet {
	return &Wallet{store: store, log: log.With().Str("component", "wallet").Logger()}
}

func chainParams(n domain.Network) (*chaincfg.Params, error) {
	switch n {
	case domain.NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case domain.NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case domain.NetworkSignet:
		return &chaincfg.SigNetParams, nil
	case domain.NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("wallet: unknown network %q", n)
}

func coinType(n domain.Network) uint32 {
	if n == domain.NetworkMainnet {
		return 0
	}
	return 1
}

// Initialized reports whether a persisted secret exists.
func (w *Wallet) Initialized() bool { return w.store.Exists() }

// Network returns the wallet network while unlocked.
func (w *Wallet) Network() (domain.Network, bool) {
	if w.sec == nil {
		return "", false
	}
	return w.sec.Network, true
}

// Generate creates a fresh mnemonic of the requested length, persists the
// secret encrypted under passphrase and returns the mnemonic for on-device
// display. The wallet stays locked.
func (w *Wallet) Generate(words int, network domain.Network, passphrase string) (string, error) {
	if w.store.Exists() {
		return "", ErrAlreadyInitialized
	}
	switch words {
	case 12, 15, 18, 21, 24:
	default:
		return "", ErrWordCount
	}
	if _, err := chainParams(network); err != nil {
		return "", err
	}
	entropy, err := bip39.NewEntropy(words / 3 * 32)
	if err != nil {
		return "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}
	if err := w.persist(secret{Mnemonic: mnemonic, Network: network}, passphrase); err != nil {
		return "", err
	}
	w.log.Info().Int("words", words).Str("network", string(network)).Msg("wallet generated")
	return mnemonic, nil
}

// Restore imports an existing mnemonic. The wallet stays locked.
func (w *Wallet) Restore(mnemonic string, network domain.Network, passphrase string) error {
	if w.store.Exists() {
		return ErrAlreadyInitialized
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrMnemonic
	}
	if _, err := chainParams(network); err != nil {
		return err
	}
	if err := w.persist(secret{Mnemonic: mnemonic, Network: network}, passphrase); err != nil {
		return err
	}
	w.log.Info().Str("network", string(network)).Msg("wallet restored")
	return nil
}

func (w *Wallet) persist(sec secret, passphrase string) error {
	raw, err := json.Marshal(sec)
	if err != nil {
		return err
	}
	return w.store.SaveSecret(passphrase, raw)
}

// Unlock decrypts the secret and derives the master key into working memory.
func (w *Wallet) Unlock(passphrase string) error {
	if !w.store.Exists() {
		return ErrNotInitialized
	}
	raw, err := w.store.LoadSecret(passphrase)
	if err != nil {
		return ErrBadPassphrase
	}
	var sec secret
	if err := json.Unmarshal(raw, &sec); err != nil {
		return err
	}
	params, err := chainParams(sec.Network)
	if err != nil {
		return err
	}
	seed := bip39.NewSeed(sec.Mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return err
	}
	w.sec = &sec
	w.master = master
	w.params = params
	w.passphrase = passphrase
	w.log.Info().Msg("wallet unlocked")
	return nil
}

// Lock drops all working-memory key material.
func (w *Wallet) Lock() {
	if w.master != nil {
		w.master.Zero()
	}
	w.sec = nil
	w.master = nil
	w.params = nil
	w.passphrase = ""
}

// Wipe locks and erases the persisted secret.
func (w *Wallet) Wipe() error {
	w.Lock()
	if err := w.store.Delete(); err != nil {
		return err
	}
	w.log.Warn().Msg("wallet wiped")
	return nil
}

// Mnemonic returns the stored mnemonic. Requires unlock.
func (w *Wallet) Mnemonic() (string, error) {
	if w.sec == nil {
		return "", ErrLocked
	}
	return w.sec.Mnemonic, nil
}

// Fingerprint is the BIP32 master key fingerprint.
func (w *Wallet) Fingerprint() ([4]byte, error) {
	var fp [4]byte
	if w.master == nil {
		return fp, ErrLocked
	}
	pub, err := w.master.ECPubKey()
	if err != nil {
		return fp, err
	}
	copy(fp[:], btcutil.Hash160(pub.SerializeCompressed())[:4])
	return fp, nil
}

func (w *Wallet) fingerprintUint32() (uint32, error) {
	fp, err := w.Fingerprint()
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(fp[:]), nil
}

// accountPath is the BIP84 account for the wallet network: m/84'/coin'/0'.
func (w *Wallet) accountPath() []uint32 {
	coin := coinType(w.sec.Network)
	return []uint32{hardened(84), hardened(coin), hardened(0)}
}

// accountKey derives the BIP84 account key.
func (w *Wallet) accountKey() (*hdkeychain.ExtendedKey, error) {
	if w.master == nil {
		return nil, ErrLocked
	}
	return deriveAt(w.master, w.accountPath())
}

// Address derives the external receive address at index.
func (w *Wallet) Address(index uint32) (string, error) {
	account, err := w.accountKey()
	if err != nil {
		return "", err
	}
	child, err := deriveAt(account, []uint32{0, index})
	if err != nil {
		return "", err
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), w.params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// Descriptors returns the watch-only external and internal descriptors. A
// descriptor applied via ApplyDescriptor takes precedence for the external
// line.
func (w *Wallet) Descriptors() (string, string, error) {
	if w.sec == nil {
		return "", "", ErrLocked
	}
	account, err := w.accountKey()
	if err != nil {
		return "", "", err
	}
	xpub, err := account.Neuter()
	if err != nil {
		return "", "", err
	}
	fp, err := w.Fingerprint()
	if err != nil {
		return "", "", err
	}
	origin := fmt.Sprintf("[%s/84h/%dh/0h]%s", hex.EncodeToString(fp[:]), coinType(w.sec.Network), xpub.String())
	external := fmt.Sprintf("wpkh(%s/0/*)", origin)
	internal := fmt.Sprintf("wpkh(%s/1/*)", origin)
	if w.sec.Descriptor != "" {
		external = w.sec.Descriptor
	}
	return external, internal, nil
}

// ApplyDescriptor validates that the descriptor references a key owned by
// this wallet (master fingerprint or account xpub) and persists it as the
// active policy.
func (w *Wallet) ApplyDescriptor(descriptor string) error {
	if w.sec == nil {
		return ErrLocked
	}
	local, err := w.containsLocalKey(descriptor)
	if err != nil {
		return err
	}
	if !local {
		return ErrForeignDescriptor
	}
	sec := *w.sec
	sec.Descriptor = descriptor
	if err := w.persistUnlocked(sec); err != nil {
		return err
	}
	w.sec = &sec
	w.log.Info().Msg("descriptor applied")
	return nil
}

// persistUnlocked rewrites the secret using the passphrase retained while
// unlocked.
func (w *Wallet) persistUnlocked(sec secret) error {
	raw, err := json.Marshal(sec)
	if err != nil {
		return err
	}
	return w.store.SaveSecret(w.passphrase, raw)
}

func hardened(i uint32) uint32 { return i + hdkeychain.HardenedKeyStart }

func deriveAt(key *hdkeychain.ExtendedKey, path []uint32) (*hdkeychain.ExtendedKey, error) {
	k := key
	for _, step := range path {
		child, err := k.Derive(step)
		if err != nil {
			return nil, err
		}
		k = child
	}
	return k, nil
}

// Compile-time assertion that Wallet implements domain.Wallet.
var _ domain.Wallet = (*Wallet)(nil)
