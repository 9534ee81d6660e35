// Package channel wraps payloads with authenticated encryption once the
// handshake is established.
//
// Each direction has its own key and its own strictly increasing message
// counter. The counter travels as an 8-byte big-endian prefix, is bound as
// associated data and embedded in the AEAD nonce, so a ciphertext can never
// be replayed or transplanted between directions. Open fails closed: a MAC
// mismatch, a replayed counter or a gap beyond the configured reorder
// window surfaces as ErrAuthentication and never as partial plaintext.
package channel

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"coldtap/internal/domain"
	"coldtap/internal/util/memzero"
)

const (
	counterSize = 8
	// Overhead is the bytes added per sealed message.
	Overhead = counterSize + chacha20poly1305.Overhead

	// maxCounter is the hard usage ceiling. Reaching it terminates the
	// session; re-handshaking is mandatory, not advisory.
	maxCounter = uint64(1) << 63

	// MaxReorderWindow bounds the configurable reorder tolerance.
	MaxReorderWindow = 8
)

var (
	// ErrAuthentication is any open failure: MAC mismatch, replay, counter
	// gap beyond the window. The session must be torn down.
	ErrAuthentication = errors.New("channel: authentication failed")
	// ErrCounterExhausted means the safe usage bound was reached and the
	// session must be re-handshaken.
	ErrCounterExhausted = errors.New("channel: counter exhausted")
	// ErrNotEstablished means seal/open was called without session keys.
	ErrNotEstablished = errors.New("channel: not established")
	// ErrWindow means the requested reorder window exceeds the bound.
	ErrWindow = errors.New("channel: reorder window too large")
)

// SecureChannel is one established session's cryptographic state. Seal and
// Open are the only mutators of the two counters.
type SecureChannel struct {
	sendKey [32]byte
	recvKey [32]byte
	send    uint64
	recv    uint64 // next expected incoming counter
	window  uint64
	open    bool
}

// New builds a channel from handshake-derived keys. window is the reorder
// tolerance: an incoming counter in [next, next+window] is accepted; zero
// means strict ordering. Skipped counters are never accepted later.
func New(keys domain.SessionKeys, window uint64) (*SecureChannel, error) {
	if window > MaxReorderWindow {
		return nil, ErrWindow
	}
	c := &SecureChannel{window: window, open: true}
	c.sendKey = keys.Send
	c.recvKey = keys.Recv
	return c, nil
}

// SendCounter returns the number of messages sealed so far.
func (c *SecureChannel) SendCounter() uint64 { return c.send }

// RecvCounter returns the number of messages accepted so far (the next
// expected counter).
func (c *SecureChannel) RecvCounter() uint64 { return c.recv }

func nonceFor(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-counterSize:], counter)
	return nonce
}

// Seal encrypts plaintext under the send key and advances the send counter.
func (c *SecureChannel) Seal(plaintext []byte) ([]byte, error) {
	if !c.open {
		return nil, ErrNotEstablished
	}
	if c.send >= maxCounter {
		return nil, ErrCounterExhausted
	}
	aead, err := chacha20poly1305.New(c.sendKey[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, counterSize, counterSize+len(plaintext)+chacha20poly1305.Overhead)
	binary.BigEndian.PutUint64(out, c.send)
	out = aead.Seal(out, nonceFor(c.send), plaintext, out[:counterSize])
	c.send++
	return out, nil
}

// Open authenticates and decrypts a sealed message, advancing the receive
// counter past it. Replays and out-of-window counters fail closed.
func (c *SecureChannel) Open(ciphertext []byte) ([]byte, error) {
	if !c.open {
		return nil, ErrNotEstablished
	}
	if len(ciphertext) < Overhead {
		return nil, ErrAuthentication
	}
	counter := binary.BigEndian.Uint64(ciphertext[:counterSize])
	if counter >= maxCounter {
		return nil, ErrCounterExhausted
	}
	if counter < c.recv || counter > c.recv+c.window {
		return nil, ErrAuthentication
	}
	aead, err := chacha20poly1305.New(c.recvKey[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonceFor(counter), ciphertext[counterSize:], ciphertext[:counterSize])
	if err != nil {
		return nil, ErrAuthentication
	}
	// Counters skipped inside the window become permanent replays: the
	// half-duplex transport cannot legitimately deliver them afterwards.
	c.recv = counter + 1
	return plaintext, nil
}

// Close zeroes both keys; subsequent seal/open calls fail.
func (c *SecureChannel) Close() {
	memzero.Zero32(&c.sendKey)
	memzero.Zero32(&c.recvKey)
	c.open = false
}
