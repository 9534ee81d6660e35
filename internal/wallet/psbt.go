package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"coldtap/internal/domain"
)

var (
	// ErrPsbt rejects transactions that fail deserialization or carry
	// inconsistent previous-output data.
	ErrPsbt = errors.New("wallet: invalid psbt")
	// ErrInputType rejects inputs this wallet cannot sign.
	ErrInputType = errors.New("wallet: unsupported input type")
)

// SignPsbt signs every input whose BIP32 derivation references this wallet's
// master fingerprint and returns the updated PSBT plus a summary of
// non-change outputs and fees for on-device review. Only witness-v0 P2WPKH
// inputs are supported.
func (w *Wallet) SignPsbt(raw []byte) ([]byte, domain.SignSummary, error) {
	if w.master == nil {
		return nil, domain.SignSummary{}, ErrLocked
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, domain.SignSummary{}, fmt.Errorf("%w: %v", ErrPsbt, err)
	}
	fp, err := w.fingerprintUint32()
	if err != nil {
		return nil, domain.SignSummary{}, err
	}

	tx := packet.UnsignedTx
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	totalIn := int64(0)
	prevOuts := make([]*wire.TxOut, len(tx.TxIn))
	for i, txin := range tx.TxIn {
		prevOut, err := inputPrevOut(&packet.Inputs[i], txin)
		if err != nil {
			return nil, domain.SignSummary{}, err
		}
		prevOuts[i] = prevOut
		fetcher.AddPrevOut(txin.PreviousOutPoint, prevOut)
		totalIn += prevOut.Value
	}

	summary, err := w.summarize(packet, fp, totalIn)
	if err != nil {
		return nil, domain.SignSummary{}, err
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i := range packet.Inputs {
		if err := w.signInput(packet, i, prevOuts[i], sigHashes, fp); err != nil {
			return nil, domain.SignSummary{}, err
		}
	}

	var out bytes.Buffer
	if err := packet.Serialize(&out); err != nil {
		return nil, domain.SignSummary{}, err
	}
	return out.Bytes(), summary, nil
}

// inputPrevOut resolves the previous output funding an input, preferring the
// full previous transaction when present and cross-checking its txid.
func inputPrevOut(in *psbt.PInput, txin *wire.TxIn) (*wire.TxOut, error) {
	if prev := in.NonWitnessUtxo; prev != nil {
		if prev.TxHash() != txin.PreviousOutPoint.Hash ||
			int(txin.PreviousOutPoint.Index) >= len(prev.TxOut) {
			return nil, fmt.Errorf("%w: previous transaction mismatch", ErrPsbt)
		}
		return prev.TxOut[txin.PreviousOutPoint.Index], nil
	}
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}
	return nil, fmt.Errorf("%w: input missing utxo data", ErrPsbt)
}

// summarize computes the fee and the non-change outputs. An output is change
// when its BIP32 derivation references our fingerprint.
func (w *Wallet) summarize(packet *psbt.Packet, fp uint32, totalIn int64) (domain.SignSummary, error) {
	totalOut := int64(0)
	var summary domain.SignSummary
	for i, txout := range packet.UnsignedTx.TxOut {
		totalOut += txout.Value
		if outputIsOurs(&packet.Outputs[i], fp) {
			continue
		}
		addr := "unknown script"
		if _, addrs, _, err := txscript.ExtractPkScriptAddrs(txout.PkScript, w.params); err == nil && len(addrs) > 0 {
			addr = addrs[0].EncodeAddress()
		}
		summary.Outputs = append(summary.Outputs, domain.SignOutput{
			Address: addr,
			Sats:    uint64(txout.Value),
		})
	}
	if totalOut > totalIn {
		return domain.SignSummary{}, fmt.Errorf("%w: outputs exceed inputs", ErrPsbt)
	}
	summary.FeeSats = uint64(totalIn - totalOut)
	return summary, nil
}

func outputIsOurs(out *psbt.POutput, fp uint32) bool {
	for _, d := range out.Bip32Derivation {
		if d.MasterKeyFingerprint == littleEndian(fp) {
			return true
		}
	}
	return false
}

// littleEndian converts the display (big-endian) fingerprint word to the
// byte order PSBT derivation fields carry.
func littleEndian(fp uint32) uint32 {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], fp)
	return binary.LittleEndian.Uint32(b[:])
}

// signInput adds a partial signature for input i when the derivation
// references our master key. Inputs owned by other signers are skipped.
func (w *Wallet) signInput(packet *psbt.Packet, i int, prevOut *wire.TxOut, sigHashes *txscript.TxSigHashes, fp uint32) error {
	in := &packet.Inputs[i]
	for _, deriv := range in.Bip32Derivation {
		if deriv.MasterKeyFingerprint != littleEndian(fp) {
			continue
		}
		child, err := deriveAt(w.master, deriv.Bip32Path)
		if err != nil {
			return err
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return err
		}
		pub := priv.PubKey().SerializeCompressed()
		if !bytes.Equal(pub, deriv.PubKey) {
			return fmt.Errorf("%w: derivation does not match pubkey", ErrPsbt)
		}

		scriptClass := txscript.GetScriptClass(prevOut.PkScript)
		if scriptClass != txscript.WitnessV0PubKeyHashTy {
			return fmt.Errorf("%w: %s", ErrInputType, scriptClass)
		}
		scriptCode, err := p2wpkhScriptCode(pub)
		if err != nil {
			return err
		}
		sig, err := txscript.RawTxInWitnessSignature(
			packet.UnsignedTx, sigHashes, i, prevOut.Value,
			scriptCode, txscript.SigHashAll, priv,
		)
		if err != nil {
			return err
		}
		in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
			PubKey:    pub,
			Signature: sig,
		})
		if in.SighashType == 0 {
			in.SighashType = txscript.SigHashAll
		}
	}
	return nil
}

// p2wpkhScriptCode is the BIP143 script code for a P2WPKH spend: the
// canonical P2PKH script over the key hash.
func p2wpkhScriptCode(compressedPub []byte) ([]byte, error) {
	hash := btcutil.Hash160(compressedPub)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}
