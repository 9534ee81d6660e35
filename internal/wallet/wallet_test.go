package wallet_test

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
	"github.com/tyler-smith/go-bip39"

	"coldtap/internal/domain"
	"coldtap/internal/store"
	"coldtap/internal/wallet"
)

// BIP39/BIP84 reference mnemonic with well-known derived values.
const vectorMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	return wallet.New(store.NewSecretFileStore(t.TempDir()), zerolog.Nop())
}

func restoredWallet(t *testing.T, network domain.Network) *wallet.Wallet {
	t.Helper()
	w := newTestWallet(t)
	if err := w.Restore(vectorMnemonic, network, "pass"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := w.Unlock("pass"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	return w
}

func TestGenerateLifecycle(t *testing.T) {
	w := newTestWallet(t)

	if _, err := w.Generate(13, domain.NetworkTestnet, "pass"); !errors.Is(err, wallet.ErrWordCount) {
		t.Fatalf("want ErrWordCount, got %v", err)
	}

	mnemonic, err := w.Generate(24, domain.NetworkTestnet, "pass")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := len(strings.Fields(mnemonic)); got != 24 {
		t.Fatalf("word count = %d, want 24", got)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		t.Fatal("generated mnemonic fails checksum")
	}
	if !w.Initialized() {
		t.Fatal("wallet should be initialized")
	}
	// Generation does not unlock.
	if _, err := w.Mnemonic(); !errors.Is(err, wallet.ErrLocked) {
		t.Fatalf("want ErrLocked, got %v", err)
	}
	if _, err := w.Generate(12, domain.NetworkTestnet, "pass"); !errors.Is(err, wallet.ErrAlreadyInitialized) {
		t.Fatalf("want ErrAlreadyInitialized, got %v", err)
	}

	if err := w.Unlock("wrong"); !errors.Is(err, wallet.ErrBadPassphrase) {
		t.Fatalf("want ErrBadPassphrase, got %v", err)
	}
	if err := w.Unlock("pass"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	got, err := w.Mnemonic()
	if err != nil || got != mnemonic {
		t.Fatalf("Mnemonic after unlock: %q err=%v", got, err)
	}

	w.Lock()
	if _, err := w.Fingerprint(); !errors.Is(err, wallet.ErrLocked) {
		t.Fatalf("want ErrLocked after Lock, got %v", err)
	}

	if err := w.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if w.Initialized() {
		t.Fatal("wallet should be gone after Wipe")
	}
}

func TestRestoreRejectsBadMnemonic(t *testing.T) {
	w := newTestWallet(t)
	err := w.Restore("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", domain.NetworkTestnet, "pass")
	if !errors.Is(err, wallet.ErrMnemonic) {
		t.Fatalf("want ErrMnemonic, got %v", err)
	}
}

func TestVectorFingerprintAndAddress(t *testing.T) {
	w := restoredWallet(t, domain.NetworkMainnet)

	fp, err := w.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if got := hex.EncodeToString(fp[:]); got != "73c5da0a" {
		t.Fatalf("fingerprint = %s, want 73c5da0a", got)
	}

	// BIP84 test vectors for the reference mnemonic.
	addr0, err := w.Address(0)
	if err != nil {
		t.Fatalf("Address(0): %v", err)
	}
	if addr0 != "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu" {
		t.Fatalf("address 0 = %s", addr0)
	}
	addr1, err := w.Address(1)
	if err != nil {
		t.Fatalf("Address(1): %v", err)
	}
	if addr1 != "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g" {
		t.Fatalf("address 1 = %s", addr1)
	}
}

func TestDescriptorsAndApply(t *testing.T) {
	w := restoredWallet(t, domain.NetworkTestnet)

	external, internal, err := w.Descriptors()
	if err != nil {
		t.Fatalf("Descriptors: %v", err)
	}
	if !strings.HasPrefix(external, "wpkh([73c5da0a/84h/1h/0h]") || !strings.HasSuffix(external, "/0/*)") {
		t.Fatalf("external descriptor = %s", external)
	}
	if !strings.HasSuffix(internal, "/1/*)") {
		t.Fatalf("internal descriptor = %s", internal)
	}

	if err := w.ApplyDescriptor("wpkh([deadbeef/84h/1h/0h]tpubFOREIGN/0/*)"); !errors.Is(err, wallet.ErrForeignDescriptor) {
		t.Fatalf("want ErrForeignDescriptor, got %v", err)
	}

	custom := strings.Replace(external, "/0/*", "/0/<0;1>/*", 1)
	if err := w.ApplyDescriptor(custom); err != nil {
		t.Fatalf("ApplyDescriptor: %v", err)
	}
	external2, _, err := w.Descriptors()
	if err != nil || external2 != custom {
		t.Fatalf("applied descriptor not returned: %s err=%v", external2, err)
	}

	// The applied descriptor survives lock/unlock.
	w.Lock()
	if err := w.Unlock("pass"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	external3, _, err := w.Descriptors()
	if err != nil || external3 != custom {
		t.Fatalf("descriptor lost across lock: %s err=%v", external3, err)
	}
}

func TestXpubAttestation(t *testing.T) {
	w := restoredWallet(t, domain.NetworkTestnet)

	xpub, att, err := w.XpubAt("m/84'/1'/0'")
	if err != nil {
		t.Fatalf("XpubAt: %v", err)
	}
	if !strings.HasPrefix(xpub, "[73c5da0a/84h/1h/0h]") {
		t.Fatalf("xpub origin = %s", xpub)
	}
	if att.Version != "1.0" || att.Token != "00" {
		t.Fatalf("attestation header = %+v", att)
	}
	if att.Description != "Coldtap 73C5DA0A" {
		t.Fatalf("attestation description = %s", att.Description)
	}
	if len(att.Signature) == 0 {
		t.Fatal("attestation not signed")
	}

	if _, _, err := w.XpubAt("m/84'/x"); !errors.Is(err, wallet.ErrPath) {
		t.Fatalf("want ErrPath, got %v", err)
	}
}

// buildVectorPsbt assembles an unsigned PSBT spending one P2WPKH input owned
// by the reference wallet: one foreign output and one change output.
func buildVectorPsbt(t *testing.T, w *wallet.Wallet) ([]byte, []byte) {
	t.Helper()

	params := &chaincfg.TestNet3Params
	seed := bip39.NewSeed(vectorMnemonic, "")
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	h := hdkeychain.HardenedKeyStart
	inputPath := []uint32{uint32(h) + 84, uint32(h) + 1, uint32(h), 0, 0}
	changePath := []uint32{uint32(h) + 84, uint32(h) + 1, uint32(h), 1, 0}

	deriveKey := func(path []uint32) []byte {
		k := master
		for _, step := range path {
			k, err = k.Derive(step)
			if err != nil {
				t.Fatalf("Derive: %v", err)
			}
		}
		pub, err := k.ECPubKey()
		if err != nil {
			t.Fatalf("ECPubKey: %v", err)
		}
		return pub.SerializeCompressed()
	}
	inputPub := deriveKey(inputPath)
	changePub := deriveKey(changePath)

	p2wpkh := func(pub []byte) []byte {
		addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub), params)
		if err != nil {
			t.Fatalf("address: %v", err)
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			t.Fatalf("script: %v", err)
		}
		return script
	}
	ourScript := p2wpkh(inputPub)
	changeScript := p2wpkh(changePub)

	foreign, err := btcutil.NewAddressWitnessPubKeyHash(bytes.Repeat([]byte{0x02}, 20), params)
	if err != nil {
		t.Fatalf("foreign address: %v", err)
	}
	foreignScript, err := txscript.PayToAddrScript(foreign)
	if err != nil {
		t.Fatalf("foreign script: %v", err)
	}

	prevHash := chainhash.Hash{0x01}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(90_000, foreignScript))
	tx.AddTxOut(wire.NewTxOut(5_000, changeScript))

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("NewFromUnsignedTx: %v", err)
	}

	fp, err := w.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fpWire := binary.LittleEndian.Uint32(fp[:])

	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(100_000, ourScript)
	packet.Inputs[0].Bip32Derivation = []*psbt.Bip32Derivation{{
		PubKey:               inputPub,
		MasterKeyFingerprint: fpWire,
		Bip32Path:            inputPath,
	}}
	packet.Outputs[1].Bip32Derivation = []*psbt.Bip32Derivation{{
		PubKey:               changePub,
		MasterKeyFingerprint: fpWire,
		Bip32Path:            changePath,
	}}

	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return buf.Bytes(), inputPub
}

func TestSignPsbt(t *testing.T) {
	w := restoredWallet(t, domain.NetworkTestnet)
	raw, inputPub := buildVectorPsbt(t, w)

	signed, summary, err := w.SignPsbt(raw)
	if err != nil {
		t.Fatalf("SignPsbt: %v", err)
	}

	// Change is filtered out of the review summary.
	if len(summary.Outputs) != 1 {
		t.Fatalf("summary outputs = %d, want 1", len(summary.Outputs))
	}
	if summary.Outputs[0].Sats != 90_000 {
		t.Fatalf("summary amount = %d", summary.Outputs[0].Sats)
	}
	if summary.FeeSats != 5_000 {
		t.Fatalf("fee = %d, want 5000", summary.FeeSats)
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(signed), false)
	if err != nil {
		t.Fatalf("reparse signed psbt: %v", err)
	}
	sigs := packet.Inputs[0].PartialSigs
	if len(sigs) != 1 {
		t.Fatalf("partial sigs = %d, want 1", len(sigs))
	}
	if !bytes.Equal(sigs[0].PubKey, inputPub) {
		t.Fatal("partial sig carries wrong pubkey")
	}
	if packet.Inputs[0].SighashType != txscript.SigHashAll {
		t.Fatalf("sighash type = %v", packet.Inputs[0].SighashType)
	}
}

func TestSignPsbtRequiresUnlock(t *testing.T) {
	w := newTestWallet(t)
	if err := w.Restore(vectorMnemonic, domain.NetworkTestnet, "pass"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, _, err := w.SignPsbt(nil); !errors.Is(err, wallet.ErrLocked) {
		t.Fatalf("want ErrLocked, got %v", err)
	}
}

func TestSignPsbtRejectsGarbage(t *testing.T) {
	w := restoredWallet(t, domain.NetworkTestnet)
	if _, _, err := w.SignPsbt([]byte("not a psbt")); !errors.Is(err, wallet.ErrPsbt) {
		t.Fatalf("want ErrPsbt, got %v", err)
	}
}
