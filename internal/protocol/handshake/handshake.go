// Package handshake implements the mutually authenticated key agreement
// between host and signer.
//
// The pattern is a fixed three-message exchange over X25519 with an
// HKDF-SHA256 chaining key and a running SHA-256 transcript hash. Static
// keys are transmitted encrypted under the current chain key, so a passive
// observer learns neither identity. Ephemeral keys are fresh per session on
// both sides; a compromised session never exposes another one.
//
// First contact additionally requires a short pairing code shown on the
// device: the host proves knowledge of it with a tag derived from the final
// chain key and the transcript. Already-paired hosts take the abbreviated
// resumption path, which elides the code step but still exchanges fresh
// ephemerals.
package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"coldtap/internal/crypto"
	"coldtap/internal/domain"
	"coldtap/internal/util/memzero"
)

// State is the handshake position. Established is terminal on success;
// Aborted is terminal on any verification failure.
type State uint8

const (
	StateStart State = iota
	StateSentEphemeral
	StateReceivedEphemeral
	StateEstablished
	StateAborted
)

// PairingProofSize is the length of the code-binding tag in message 3.
const PairingProofSize = 16

var (
	// ErrVerification covers any MAC or commitment failure. The session must
	// be torn down and re-handshaken.
	ErrVerification = errors.New("handshake: verification failed")
	// ErrState means a message arrived in the wrong handshake state.
	ErrState = errors.New("handshake: message out of order")
	// ErrPairingCode means the host's pairing-code proof did not verify.
	ErrPairingCode = errors.New("handshake: pairing code mismatch")
)

// protocol label, hashed into the initial chain key and transcript.
const protocolName = "coldtap/1 x25519 chacha20poly1305 sha256"

type msgHello struct {
	Ephemeral []byte `cbor:"e"`
	PairingID string `cbor:"pairing_id,omitempty"`
}

type msgAccept struct {
	Ephemeral []byte `cbor:"e"`
	StaticCT  []byte `cbor:"s"`
	Resumed   bool   `cbor:"resumed,omitempty"`
}

type msgFinish struct {
	StaticCT []byte `cbor:"s"`
	Proof    []byte `cbor:"proof,omitempty"`
}

// Result is the outcome of a completed handshake.
type Result struct {
	Keys       domain.SessionKeys
	PeerStatic domain.X25519Public
	// Resumed is set when the abbreviated path was taken.
	Resumed bool
}

// --- key schedule helpers ---

func initialState() (ck, h []byte) {
	sum := sha256.Sum256([]byte(protocolName))
	ck = append([]byte(nil), sum[:]...)
	h = append([]byte(nil), sum[:]...)
	return
}

func mixHash(h, data []byte) []byte {
	s := sha256.New()
	s.Write(h)
	s.Write(data)
	return s.Sum(nil)
}

// mixKey ratchets the chain key with a DH output and yields a one-shot
// message key.
func mixKey(ck, dh []byte) (newCK, k []byte) {
	r := hkdf.New(sha256.New, dh, ck, []byte("ct|ck"))
	newCK = make([]byte, 32)
	k = make([]byte, 32)
	_, _ = io.ReadFull(r, newCK)
	_, _ = io.ReadFull(r, k)
	return
}

// split derives the directional session keys. The signer sends on the second
// half; the two sides mirror the assignment by role.
func split(ck []byte, role domain.Role) domain.SessionKeys {
	r := hkdf.New(sha256.New, nil, ck, []byte("ct|split"))
	var h2s, s2h [32]byte
	_, _ = io.ReadFull(r, h2s[:])
	_, _ = io.ReadFull(r, s2h[:])
	if role == domain.RoleHost {
		return domain.SessionKeys{Send: h2s, Recv: s2h}
	}
	return domain.SessionKeys{Send: s2h, Recv: h2s}
}

// pairingProof binds the transcript and the out-of-band code to the final
// chain key.
func pairingProof(ck, transcript []byte, code string) []byte {
	ikm := make([]byte, 0, len(transcript)+len(code))
	ikm = append(ikm, transcript...)
	ikm = append(ikm, code...)
	r := hkdf.New(sha256.New, ikm, ck, []byte("ct|pair"))
	out := make([]byte, PairingProofSize)
	_, _ = io.ReadFull(r, out)
	return out
}

// IsHello reports whether data parses as a first handshake message. The
// responder uses it to tell a restarted handshake from its continuation:
// only the hello carries a bare 32-byte ephemeral.
func IsHello(data []byte) bool {
	var m msgHello
	return cbor.Unmarshal(data, &m) == nil && len(m.Ephemeral) == 32
}

// GeneratePairingCode returns a fresh 6-digit code for the device display.
func GeneratePairingCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}

func sealStatic(k, h []byte, pub domain.X25519Public) ([]byte, error) {
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return aead.Seal(nil, nonce, pub.Slice(), h), nil
}

func openStatic(k, h, ct []byte) (domain.X25519Public, error) {
	var pub domain.X25519Public
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return pub, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	pt, err := aead.Open(nil, nonce, ct, h)
	if err != nil || len(pt) != 32 {
		return pub, ErrVerification
	}
	copy(pub[:], pt)
	return pub, nil
}

// --- initiator (host) ---

// Initiator drives the host side of the handshake.
type Initiator struct {
	state State

	staticPriv domain.X25519Private
	staticPub  domain.X25519Public
	ephPriv    domain.X25519Private
	ephPub     domain.X25519Public

	pairingID string

	ck, h      []byte
	k2         []byte // key protecting our static in message 3
	signerPub  domain.X25519Public
	resumed    bool
	signerEph  domain.X25519Public
}

// NewInitiator prepares a handshake. pairingID is the resumption claim and
// may be empty on first contact.
func NewInitiator(staticPriv domain.X25519Private, staticPub domain.X25519Public, pairingID string) *Initiator {
	ck, h := initialState()
	return &Initiator{
		state:      StateStart,
		staticPriv: staticPriv,
		staticPub:  staticPub,
		pairingID:  pairingID,
		ck:         ck,
		h:          h,
	}
}

// State returns the current handshake position.
func (i *Initiator) State() State { return i.state }

// SignerStatic returns the signer's long-term key, valid once the accept
// message has been processed. Hosts use it for trust-on-first-use display.
func (i *Initiator) SignerStatic() domain.X25519Public { return i.signerPub }

// Resumed reports whether the signer accepted the resumption claim.
func (i *Initiator) Resumed() bool { return i.resumed }

func (i *Initiator) abort() {
	i.state = StateAborted
	memzero.Zero(i.ck)
	memzero.Zero(i.k2)
	memzero.Zero32((*[32]byte)(&i.ephPriv))
}

// Hello emits message 1: our fresh ephemeral plus the optional resumption
// claim.
func (i *Initiator) Hello() ([]byte, error) {
	if i.state != StateStart {
		return nil, ErrState
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		i.abort()
		return nil, err
	}
	i.ephPriv, i.ephPub = priv, pub
	i.h = mixHash(i.h, pub.Slice())
	if i.pairingID != "" {
		i.h = mixHash(i.h, []byte(i.pairingID))
	}
	out, err := cbor.Marshal(msgHello{Ephemeral: pub.Slice(), PairingID: i.pairingID})
	if err != nil {
		i.abort()
		return nil, err
	}
	i.state = StateSentEphemeral
	return out, nil
}

// ReadAccept processes message 2 and reports whether the pairing-code step
// is required (false on resumption).
func (i *Initiator) ReadAccept(data []byte) (needsCode bool, err error) {
	if i.state != StateSentEphemeral {
		return false, ErrState
	}
	var m msgAccept
	if err := cbor.Unmarshal(data, &m); err != nil || len(m.Ephemeral) != 32 {
		i.abort()
		return false, ErrVerification
	}
	copy(i.signerEph[:], m.Ephemeral)
	i.h = mixHash(i.h, m.Ephemeral)

	dh1, err := crypto.DH(i.ephPriv, i.signerEph)
	if err != nil {
		i.abort()
		return false, err
	}
	var k1 []byte
	i.ck, k1 = mixKey(i.ck, dh1[:])
	memzero.Zero(dh1[:])

	signerPub, err := openStatic(k1, i.h, m.StaticCT)
	memzero.Zero(k1)
	if err != nil {
		i.abort()
		return false, ErrVerification
	}
	i.signerPub = signerPub
	i.h = mixHash(i.h, m.StaticCT)

	// Mix the signer's static into the chain: DH(Ss, He).
	dh2, err := crypto.DH(i.ephPriv, signerPub)
	if err != nil {
		i.abort()
		return false, err
	}
	i.ck, i.k2 = mixKey(i.ck, dh2[:])
	memzero.Zero(dh2[:])

	i.resumed = m.Resumed
	i.state = StateReceivedEphemeral
	return !m.Resumed, nil
}

// Finish emits message 3 and completes the handshake. code is the pairing
// code read from the device display; it is ignored on the resumption path.
func (i *Initiator) Finish(code string) ([]byte, Result, error) {
	if i.state != StateReceivedEphemeral {
		return nil, Result{}, ErrState
	}
	ct, err := sealStatic(i.k2, i.h, i.staticPub)
	if err != nil {
		i.abort()
		return nil, Result{}, err
	}
	memzero.Zero(i.k2)
	i.h = mixHash(i.h, ct)

	dh3, err := crypto.DH(i.staticPriv, i.signerEph)
	if err != nil {
		i.abort()
		return nil, Result{}, err
	}
	var k3 []byte
	i.ck, k3 = mixKey(i.ck, dh3[:])
	memzero.Zero(dh3[:])
	memzero.Zero(k3)

	m := msgFinish{StaticCT: ct}
	if !i.resumed {
		m.Proof = pairingProof(i.ck, i.h, code)
	}
	out, err := cbor.Marshal(m)
	if err != nil {
		i.abort()
		return nil, Result{}, err
	}

	keys := split(i.ck, domain.RoleHost)
	memzero.Zero(i.ck)
	memzero.Zero32((*[32]byte)(&i.ephPriv))
	i.state = StateEstablished
	return out, Result{Keys: keys, PeerStatic: i.signerPub, Resumed: i.resumed}, nil
}

// --- responder (signer) ---

// PairingLookup resolves a resumption claim to a stored pairing record.
type PairingLookup func(id string) (domain.PairingRecord, bool)

// Responder drives the signer side of the handshake.
type Responder struct {
	state State

	staticPriv domain.X25519Private
	staticPub  domain.X25519Public
	ephPriv    domain.X25519Private

	lookup PairingLookup

	ck, h   []byte
	k2      []byte
	hostEph domain.X25519Public

	resumed bool
	record  domain.PairingRecord
	code    string
}

// NewResponder prepares the signer side. lookup may be nil when no pairings
// exist yet.
func NewResponder(staticPriv domain.X25519Private, staticPub domain.X25519Public, lookup PairingLookup) *Responder {
	ck, h := initialState()
	return &Responder{
		state:      StateStart,
		staticPriv: staticPriv,
		staticPub:  staticPub,
		lookup:     lookup,
		ck:         ck,
		h:          h,
	}
}

// State returns the current handshake position.
func (r *Responder) State() State { return r.state }

// Resumed reports whether the abbreviated path was taken.
func (r *Responder) Resumed() bool { return r.resumed }

func (r *Responder) abort() {
	r.state = StateAborted
	memzero.Zero(r.ck)
	memzero.Zero(r.k2)
	memzero.Zero32((*[32]byte)(&r.ephPriv))
}

// ReadHello processes message 1 and emits message 2. code is the pairing
// code currently on the device display; it is unused when the hello carries
// a valid resumption claim.
func (r *Responder) ReadHello(data []byte, code string) ([]byte, error) {
	if r.state != StateStart {
		return nil, ErrState
	}
	var m msgHello
	if err := cbor.Unmarshal(data, &m); err != nil || len(m.Ephemeral) != 32 {
		r.abort()
		return nil, ErrVerification
	}
	copy(r.hostEph[:], m.Ephemeral)
	r.h = mixHash(r.h, m.Ephemeral)
	if m.PairingID != "" {
		r.h = mixHash(r.h, []byte(m.PairingID))
		if r.lookup != nil {
			if rec, ok := r.lookup(m.PairingID); ok && rec.Confirmed {
				r.resumed = true
				r.record = rec
			}
		}
	}
	r.code = code

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		r.abort()
		return nil, err
	}
	r.ephPriv = ephPriv
	r.h = mixHash(r.h, ephPub.Slice())

	dh1, err := crypto.DH(ephPriv, r.hostEph)
	if err != nil {
		r.abort()
		return nil, err
	}
	var k1 []byte
	r.ck, k1 = mixKey(r.ck, dh1[:])
	memzero.Zero(dh1[:])

	ct, err := sealStatic(k1, r.h, r.staticPub)
	memzero.Zero(k1)
	if err != nil {
		r.abort()
		return nil, err
	}
	r.h = mixHash(r.h, ct)

	dh2, err := crypto.DH(r.staticPriv, r.hostEph)
	if err != nil {
		r.abort()
		return nil, err
	}
	r.ck, r.k2 = mixKey(r.ck, dh2[:])
	memzero.Zero(dh2[:])

	out, err := cbor.Marshal(msgAccept{Ephemeral: ephPub.Slice(), StaticCT: ct, Resumed: r.resumed})
	if err != nil {
		r.abort()
		return nil, err
	}
	r.state = StateSentEphemeral
	return out, nil
}

// ReadFinish processes message 3 and completes the handshake. On the
// resumption path the decrypted host static must match the stored record;
// on first contact the pairing-code proof must verify. Either failure aborts
// with no pairing side effects.
func (r *Responder) ReadFinish(data []byte) (Result, error) {
	if r.state != StateSentEphemeral {
		return Result{}, ErrState
	}
	var m msgFinish
	if err := cbor.Unmarshal(data, &m); err != nil {
		r.abort()
		return Result{}, ErrVerification
	}

	hostPub, err := openStatic(r.k2, r.h, m.StaticCT)
	memzero.Zero(r.k2)
	if err != nil {
		r.abort()
		return Result{}, ErrVerification
	}
	r.h = mixHash(r.h, m.StaticCT)

	dh3, err := crypto.DH(r.ephPriv, hostPub)
	if err != nil {
		r.abort()
		return Result{}, err
	}
	var k3 []byte
	r.ck, k3 = mixKey(r.ck, dh3[:])
	memzero.Zero(dh3[:])
	memzero.Zero(k3)

	if r.resumed {
		if subtle.ConstantTimeCompare(hostPub.Slice(), r.record.HostStatic.Slice()) != 1 {
			r.abort()
			return Result{}, ErrVerification
		}
	} else {
		want := pairingProof(r.ck, r.h, r.code)
		if len(m.Proof) != PairingProofSize ||
			subtle.ConstantTimeCompare(m.Proof, want) != 1 {
			r.abort()
			return Result{}, ErrPairingCode
		}
	}

	keys := split(r.ck, domain.RoleSigner)
	memzero.Zero(r.ck)
	memzero.Zero32((*[32]byte)(&r.ephPriv))
	r.state = StateEstablished
	return Result{Keys: keys, PeerStatic: hostPub, Resumed: r.resumed}, nil
}
