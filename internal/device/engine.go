package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coldtap/internal/crypto"
	"coldtap/internal/domain"
	"coldtap/internal/frame"
	"coldtap/internal/protocol/channel"
	"coldtap/internal/protocol/handshake"
	"coldtap/internal/wire"
)

var (
	// ErrNoSession means a sealed message arrived before any handshake
	// completed.
	ErrNoSession = errors.New("device: no established session")
	// ErrBadMessage means a reassembled message had no class byte or an
	// unknown one.
	ErrBadMessage = errors.New("device: malformed message")
)

// Config carries the engine's tunables.
type Config struct {
	// FrameCapacity is the maximum frame size the transport can carry.
	FrameCapacity int
	// ReorderWindow is the secure-channel reorder tolerance.
	ReorderWindow uint64
}

// Engine is the signer-side protocol loop. It is purely reactive: every
// complete incoming message yields zero or more response frames, and nothing
// happens between frames. Cryptographic failures tear the session down;
// command failures travel back as structured errors inside the channel.
type Engine struct {
	staticPriv domain.X25519Private
	staticPub  domain.X25519Public

	pairings   domain.PairingStore
	dispatcher *Dispatcher
	confirm    domain.Confirmer
	cfg        Config
	log        zerolog.Logger

	reasm    frame.Reassembler
	hs       *handshake.Responder
	ch       *channel.SecureChannel
	peer     domain.X25519Public
	outIndex uint8
}

// NewEngine builds the signer engine around its long-term identity.
func NewEngine(priv domain.X25519Private, pub domain.X25519Public,
	pairings domain.PairingStore, dispatcher *Dispatcher, confirm domain.Confirmer,
	cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		staticPriv: priv,
		staticPub:  pub,
		pairings:   pairings,
		dispatcher: dispatcher,
		confirm:    confirm,
		cfg:        cfg,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Static returns the signer's long-term public key.
func (e *Engine) Static() domain.X25519Public { return e.staticPub }

// SessionEstablished reports whether a secure channel is currently open.
func (e *Engine) SessionEstablished() bool { return e.ch != nil }

// HandleFrame feeds one raw frame and returns the frames to send back, if the
// message completed and produced a response. A nil error with no frames means
// the message is still being reassembled or needs no reply.
func (e *Engine) HandleFrame(raw []byte) ([][]byte, error) {
	f, err := frame.Decode(raw)
	if err != nil {
		return nil, err
	}
	msg, done := e.reasm.Push(f)
	if !done {
		return nil, nil
	}
	if len(msg) == 0 {
		return nil, ErrBadMessage
	}
	switch msg[0] {
	case wire.ClassHandshake:
		return e.handleHandshake(msg[1:])
	case wire.ClassSealed:
		return e.handleSealed(msg[1:])
	}
	return nil, fmt.Errorf("%w: class 0x%02x", ErrBadMessage, msg[0])
}

// teardown discards all session state. Subsequent traffic must re-handshake.
func (e *Engine) teardown() {
	if e.ch != nil {
		e.ch.Close()
		e.ch = nil
	}
	e.hs = nil
	e.peer = domain.X25519Public{}
}

func (e *Engine) lookupPairing(id string) (domain.PairingRecord, bool) {
	rec, ok, err := e.pairings.LoadPairing(id)
	if err != nil {
		return domain.PairingRecord{}, false
	}
	return rec, ok
}

func (e *Engine) handleHandshake(body []byte) ([][]byte, error) {
	// Any hello replaces the current session: a host that re-handshakes has
	// discarded its keys, and stale channel state must not linger. This holds
	// even mid-handshake, so a host that gave up after our accept can start
	// over without burning a round trip on a failed finish.
	if e.hs == nil || e.hs.State() != handshake.StateSentEphemeral || handshake.IsHello(body) {
		e.teardown()
		e.hs = handshake.NewResponder(e.staticPriv, e.staticPub, e.lookupPairing)
	}

	switch e.hs.State() {
	case handshake.StateStart:
		code, err := handshake.GeneratePairingCode()
		if err != nil {
			e.teardown()
			return nil, err
		}
		accept, err := e.hs.ReadHello(body, code)
		if err != nil {
			e.teardown()
			return nil, err
		}
		if !e.hs.Resumed() {
			approved, err := e.confirm.Confirm(domain.Confirmation{
				Title: "Pair new host",
				Lines: []string{"pairing code: " + code},
			})
			if err != nil || !approved {
				e.teardown()
				return nil, fmt.Errorf("device: pairing refused")
			}
		}
		return e.fragment(wire.ClassHandshake, accept)

	case handshake.StateSentEphemeral:
		result, err := e.hs.ReadFinish(body)
		if err != nil {
			e.teardown()
			return nil, err
		}
		ch, err := channel.New(result.Keys, e.cfg.ReorderWindow)
		result.Keys.Zero()
		if err != nil {
			e.teardown()
			return nil, err
		}
		e.ch = ch
		e.peer = result.PeerStatic
		if !result.Resumed {
			rec := domain.PairingRecord{
				ID:         crypto.Fingerprint(result.PeerStatic.Slice()),
				HostStatic: result.PeerStatic,
				Confirmed:  true,
				CreatedUTC: time.Now().UTC().Unix(),
			}
			if err := e.pairings.SavePairing(rec); err != nil {
				e.teardown()
				return nil, err
			}
		}
		e.log.Info().
			Str("session", uuid.NewString()).
			Str("host", crypto.Fingerprint(result.PeerStatic.Slice())).
			Bool("resumed", result.Resumed).
			Msg("session established")
		return nil, nil
	}
	e.teardown()
	return nil, handshake.ErrState
}

func (e *Engine) handleSealed(body []byte) ([][]byte, error) {
	if e.ch == nil {
		return nil, ErrNoSession
	}
	plaintext, err := e.ch.Open(body)
	if err != nil {
		e.teardown()
		e.log.Warn().Err(err).Msg("session torn down")
		return nil, err
	}

	var (
		resp       domain.Response
		endSession bool
	)
	cmd, err := wire.DecodeCommand(plaintext)
	if err != nil {
		resp = domain.ErrorReply{Kind: domain.ErrKindProtocol, Detail: err.Error()}
	} else {
		resp, endSession = e.dispatcher.Handle(cmd)
	}

	encoded, err := wire.EncodeResponse(resp)
	if err != nil {
		return nil, err
	}
	sealed, err := e.ch.Seal(encoded)
	if err != nil {
		e.teardown()
		return nil, err
	}
	frames, err := e.fragment(wire.ClassSealed, sealed)
	if err != nil {
		return nil, err
	}
	if endSession {
		// The command invalidated the pairing the session rides on. The reply
		// is already sealed; close the channel behind it.
		e.teardown()
		e.log.Info().Msg("session ended by command")
	}
	return frames, nil
}

// fragment prefixes the class byte and splits the message into send frames.
func (e *Engine) fragment(class byte, body []byte) ([][]byte, error) {
	msg := make([]byte, 0, 1+len(body))
	msg = append(msg, class)
	msg = append(msg, body...)
	frames, err := frame.Fragment(msg, e.cfg.FrameCapacity, e.outIndex)
	if err != nil {
		return nil, err
	}
	e.outIndex++
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = f.Encode()
	}
	return out, nil
}
