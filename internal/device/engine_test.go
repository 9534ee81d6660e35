package device_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"coldtap/internal/crypto"
	"coldtap/internal/device"
	"coldtap/internal/domain"
	"coldtap/internal/frame"
	"coldtap/internal/protocol/channel"
	"coldtap/internal/protocol/handshake"
	"coldtap/internal/store"
	"coldtap/internal/wallet"
	"coldtap/internal/wire"
)

const testCapacity = 64

// codeCapture approves everything and remembers the displayed pairing code.
type codeCapture struct {
	code    string
	prompts int
}

func (c *codeCapture) Confirm(p domain.Confirmation) (bool, error) {
	c.prompts++
	if p.Title == "Pair new host" && len(p.Lines) == 1 {
		c.code = p.Lines[0][len("pairing code: "):]
	}
	return true, nil
}

func newEngine(t *testing.T, confirm domain.Confirmer) *device.Engine {
	t.Helper()
	dir := t.TempDir()
	pairings := store.NewPairingFileStore(dir)
	w := wallet.New(store.NewSecretFileStore(dir), zerolog.Nop())
	fw := store.NewFirmwareFileStore(dir)
	d := device.NewDispatcher(w, confirm, fw, pairings, zerolog.Nop())

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return device.NewEngine(priv, pub, pairings, d, confirm,
		device.Config{FrameCapacity: testCapacity, ReorderWindow: 0}, zerolog.Nop())
}

// testHost drives the host side of the protocol against an engine in memory.
type testHost struct {
	t      *testing.T
	engine *device.Engine

	priv domain.X25519Private
	pub  domain.X25519Public

	index uint8
	reasm frame.Reassembler
	ch    *channel.SecureChannel
}

func newTestHost(t *testing.T, e *device.Engine) *testHost {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return &testHost{t: t, engine: e, priv: priv, pub: pub}
}

// exchange fragments one classed message, feeds every frame to the engine and
// reassembles the engine's reply, if any.
func (h *testHost) exchange(class byte, body []byte) ([]byte, bool) {
	h.t.Helper()
	msg := append([]byte{class}, body...)
	frames, err := frame.Fragment(msg, testCapacity, h.index)
	if err != nil {
		h.t.Fatalf("Fragment: %v", err)
	}
	h.index++

	var replies [][]byte
	for _, f := range frames {
		out, err := h.engine.HandleFrame(f.Encode())
		if err != nil {
			h.t.Fatalf("HandleFrame: %v", err)
		}
		replies = append(replies, out...)
	}
	for _, raw := range replies {
		f, err := frame.Decode(raw)
		if err != nil {
			h.t.Fatalf("Decode reply: %v", err)
		}
		if reply, done := h.reasm.Push(f); done {
			return reply, true
		}
	}
	return nil, false
}

// connect runs the full handshake. codeFrom supplies the pairing code shown
// on the device; it is unused on resumption.
func (h *testHost) connect(pairingID string, codeFrom *codeCapture) bool {
	h.t.Helper()
	init := handshake.NewInitiator(h.priv, h.pub, pairingID)

	hello, err := init.Hello()
	if err != nil {
		h.t.Fatalf("Hello: %v", err)
	}
	reply, ok := h.exchange(wire.ClassHandshake, hello)
	if !ok || len(reply) == 0 || reply[0] != wire.ClassHandshake {
		h.t.Fatalf("no handshake reply: ok=%v", ok)
	}
	needsCode, err := init.ReadAccept(reply[1:])
	if err != nil {
		h.t.Fatalf("ReadAccept: %v", err)
	}

	code := ""
	if needsCode {
		code = codeFrom.code
	}
	finish, result, err := init.Finish(code)
	if err != nil {
		h.t.Fatalf("Finish: %v", err)
	}
	if _, ok := h.exchange(wire.ClassHandshake, finish); ok {
		h.t.Fatal("finish should not produce a reply message")
	}
	ch, err := channel.New(result.Keys, 0)
	if err != nil {
		h.t.Fatalf("channel.New: %v", err)
	}
	h.ch = ch
	return result.Resumed
}

// do runs one command through the secure channel.
func (h *testHost) do(cmd domain.Command) domain.Response {
	h.t.Helper()
	encoded, err := wire.EncodeCommand(cmd)
	if err != nil {
		h.t.Fatalf("EncodeCommand: %v", err)
	}
	sealed, err := h.ch.Seal(encoded)
	if err != nil {
		h.t.Fatalf("Seal: %v", err)
	}
	reply, ok := h.exchange(wire.ClassSealed, sealed)
	if !ok || len(reply) == 0 || reply[0] != wire.ClassSealed {
		h.t.Fatalf("no sealed reply: ok=%v", ok)
	}
	plaintext, err := h.ch.Open(reply[1:])
	if err != nil {
		h.t.Fatalf("Open: %v", err)
	}
	resp, err := wire.DecodeResponse(plaintext)
	if err != nil {
		h.t.Fatalf("DecodeResponse: %v", err)
	}
	return resp
}

func TestPairAndCommandRoundTrip(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)

	if resumed := h.connect("", confirm); resumed {
		t.Fatal("first contact must not resume")
	}
	if confirm.code == "" {
		t.Fatal("pairing code was never displayed")
	}
	if !e.SessionEstablished() {
		t.Fatal("engine has no session")
	}

	info, ok := h.do(domain.GetInfo{}).(domain.Info)
	if !ok || info.Initialized {
		t.Fatalf("info = %+v", info)
	}

	// Full provisioning through the channel.
	if _, ok := h.do(domain.GenerateMnemonic{Words: 24, Network: domain.NetworkTestnet, Passphrase: "p"}).(domain.MnemonicWords); !ok {
		t.Fatal("generate failed")
	}
	if resp := h.do(domain.Unlock{Passphrase: "p"}); resp != domain.Response(domain.Ok{}) {
		t.Fatalf("unlock = %+v", resp)
	}
	addr, ok := h.do(domain.DisplayAddress{Index: 0}).(domain.AddressReply)
	if !ok || addr.Address == "" {
		t.Fatalf("address = %+v", addr)
	}
}

func TestResumptionSkipsPairingCode(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)

	h.connect("", confirm)
	promptsAfterPairing := confirm.prompts

	// Second session claims the pairing derived from the host static.
	pairingID := crypto.Fingerprint(h.pub.Slice())
	if resumed := h.connect(pairingID, confirm); !resumed {
		t.Fatal("expected resumption")
	}
	if confirm.prompts != promptsAfterPairing {
		t.Fatal("resumption must not prompt for pairing")
	}
	if _, ok := h.do(domain.GetInfo{}).(domain.Info); !ok {
		t.Fatal("command after resumption failed")
	}
}

func TestUnknownPairingFallsBackToCode(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)

	if resumed := h.connect("no-such-pairing", confirm); resumed {
		t.Fatal("unknown claim must not resume")
	}
	if confirm.code == "" {
		t.Fatal("fallback must display a pairing code")
	}
}

func TestReplayTearsSessionDown(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)
	h.connect("", confirm)

	encoded, err := wire.EncodeCommand(domain.GetInfo{})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	sealed, err := h.ch.Seal(encoded)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, ok := h.exchange(wire.ClassSealed, sealed); !ok {
		t.Fatal("first delivery got no reply")
	}

	// Replaying the identical sealed message must kill the session.
	msg := append([]byte{wire.ClassSealed}, sealed...)
	frames, err := frame.Fragment(msg, testCapacity, h.index)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	h.index++
	var gotErr error
	for _, f := range frames {
		if _, err := e.HandleFrame(f.Encode()); err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatal("replay was accepted")
	}
	if e.SessionEstablished() {
		t.Fatal("session survived a replay")
	}
}

func TestGarbageSealedMessageTearsSessionDown(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)
	h.connect("", confirm)

	junk := bytes.Repeat([]byte{0x42}, channel.Overhead+4)
	msg := append([]byte{wire.ClassSealed}, junk...)
	frames, err := frame.Fragment(msg, testCapacity, h.index)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	h.index++
	var gotErr error
	for _, f := range frames {
		if _, err := e.HandleFrame(f.Encode()); err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatal("forged ciphertext was accepted")
	}
	if e.SessionEstablished() {
		t.Fatal("session survived forged ciphertext")
	}
}

func TestWipeTearsSessionDown(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)
	h.connect("", confirm)

	if _, ok := h.do(domain.GenerateMnemonic{Words: 12, Network: domain.NetworkTestnet, Passphrase: "p"}).(domain.MnemonicWords); !ok {
		t.Fatal("generate failed")
	}

	// The wipe reply itself still travels through the channel.
	if resp := h.do(domain.Wipe{}); resp != domain.Response(domain.Ok{}) {
		t.Fatalf("wipe = %+v", resp)
	}
	if e.SessionEstablished() {
		t.Fatal("session survived a wipe")
	}

	// Traffic on the dead channel is rejected, not answered.
	encoded, err := wire.EncodeCommand(domain.GetInfo{})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	sealed, err := h.ch.Seal(encoded)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	msg := append([]byte{wire.ClassSealed}, sealed...)
	frames, err := frame.Fragment(msg, testCapacity, h.index)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	h.index++
	var gotErr error
	for _, f := range frames {
		if _, err := e.HandleFrame(f.Encode()); err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatal("sealed command after wipe was accepted")
	}
}

func TestHelloRetryRestartsHandshake(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)
	h := newTestHost(t, e)

	// A host that stops after the accept leaves the engine waiting for a
	// finish. Its next attempt starts with a fresh hello.
	abandoned := newTestHost(t, e)
	init := handshake.NewInitiator(abandoned.priv, abandoned.pub, "")
	hello, err := init.Hello()
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	reply, ok := abandoned.exchange(wire.ClassHandshake, hello)
	if !ok || len(reply) == 0 || reply[0] != wire.ClassHandshake {
		t.Fatalf("no accept for first hello: ok=%v", ok)
	}

	// The fresh hello must be answered with an accept on the first round
	// trip, and the restarted handshake must complete.
	if resumed := h.connect("", confirm); resumed {
		t.Fatal("first contact must not resume")
	}
	if _, ok := h.do(domain.GetInfo{}).(domain.Info); !ok {
		t.Fatal("command after restarted handshake failed")
	}
}

func TestSealedBeforeHandshakeRejected(t *testing.T) {
	confirm := &codeCapture{}
	e := newEngine(t, confirm)

	msg := []byte{wire.ClassSealed, 0x00}
	frames, err := frame.Fragment(msg, testCapacity, 0)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if _, err := e.HandleFrame(frames[0].Encode()); err == nil {
		t.Fatal("sealed traffic without a session must fail")
	}
}
