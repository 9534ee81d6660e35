package handshake_test

import (
	"errors"
	"testing"

	"coldtap/internal/crypto"
	"coldtap/internal/domain"
	"coldtap/internal/protocol/handshake"
)

type party struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

func makeParty(t *testing.T) party {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return party{priv: priv, pub: pub}
}

// run executes a full first-contact handshake with the given codes on each
// side and returns both results.
func run(t *testing.T, host, signer party, hostCode, signerCode string) (handshake.Result, handshake.Result, error) {
	t.Helper()

	ini := handshake.NewInitiator(host.priv, host.pub, "")
	res := handshake.NewResponder(signer.priv, signer.pub, nil)

	m1, err := ini.Hello()
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	m2, err := res.ReadHello(m1, signerCode)
	if err != nil {
		t.Fatalf("ReadHello: %v", err)
	}
	needsCode, err := ini.ReadAccept(m2)
	if err != nil {
		t.Fatalf("ReadAccept: %v", err)
	}
	if !needsCode {
		t.Fatal("first contact must require the pairing code")
	}
	m3, hostResult, err := ini.Finish(hostCode)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	signerResult, err := res.ReadFinish(m3)
	return hostResult, signerResult, err
}

func TestFullHandshakeDerivesMirroredKeys(t *testing.T) {
	host := makeParty(t)
	signer := makeParty(t)

	hostRes, signerRes, err := run(t, host, signer, "482913", "482913")
	if err != nil {
		t.Fatalf("ReadFinish: %v", err)
	}
	if hostRes.Keys.Send != signerRes.Keys.Recv || hostRes.Keys.Recv != signerRes.Keys.Send {
		t.Fatal("directional keys are not mirrored")
	}
	if hostRes.PeerStatic != signer.pub {
		t.Fatal("host learned wrong signer static")
	}
	if signerRes.PeerStatic != host.pub {
		t.Fatal("signer learned wrong host static")
	}
}

func TestEphemeralFreshness(t *testing.T) {
	host := makeParty(t)
	signer := makeParty(t)

	first, _, err := run(t, host, signer, "000111", "000111")
	if err != nil {
		t.Fatalf("first handshake: %v", err)
	}
	second, _, err := run(t, host, signer, "000111", "000111")
	if err != nil {
		t.Fatalf("second handshake: %v", err)
	}
	if first.Keys.Send == second.Keys.Send || first.Keys.Recv == second.Keys.Recv {
		t.Fatal("two handshakes between the same long-term keys produced identical session keys")
	}
}

func TestWrongPairingCodeAborts(t *testing.T) {
	host := makeParty(t)
	signer := makeParty(t)

	_, _, err := run(t, host, signer, "123456", "654321")
	if !errors.Is(err, handshake.ErrPairingCode) {
		t.Fatalf("want ErrPairingCode, got %v", err)
	}
}

func TestResumptionSkipsCode(t *testing.T) {
	host := makeParty(t)
	signer := makeParty(t)

	rec := domain.PairingRecord{ID: "rec-1", HostStatic: host.pub, Confirmed: true}
	lookup := func(id string) (domain.PairingRecord, bool) {
		if id == rec.ID {
			return rec, true
		}
		return domain.PairingRecord{}, false
	}

	ini := handshake.NewInitiator(host.priv, host.pub, rec.ID)
	res := handshake.NewResponder(signer.priv, signer.pub, lookup)

	m1, err := ini.Hello()
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	m2, err := res.ReadHello(m1, "")
	if err != nil {
		t.Fatalf("ReadHello: %v", err)
	}
	needsCode, err := ini.ReadAccept(m2)
	if err != nil {
		t.Fatalf("ReadAccept: %v", err)
	}
	if needsCode {
		t.Fatal("resumption must not require the code")
	}
	m3, hostRes, err := ini.Finish("")
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	signerRes, err := res.ReadFinish(m3)
	if err != nil {
		t.Fatalf("ReadFinish: %v", err)
	}
	if !hostRes.Resumed || !signerRes.Resumed {
		t.Fatal("both sides should report resumption")
	}
	if hostRes.Keys.Send != signerRes.Keys.Recv {
		t.Fatal("resumed keys are not mirrored")
	}
}

func TestUnconfirmedRecordFallsBackToFullPairing(t *testing.T) {
	host := makeParty(t)
	signer := makeParty(t)

	rec := domain.PairingRecord{ID: "rec-1", HostStatic: host.pub, Confirmed: false}
	lookup := func(id string) (domain.PairingRecord, bool) { return rec, id == rec.ID }

	ini := handshake.NewInitiator(host.priv, host.pub, rec.ID)
	res := handshake.NewResponder(signer.priv, signer.pub, lookup)

	m1, _ := ini.Hello()
	m2, err := res.ReadHello(m1, "909090")
	if err != nil {
		t.Fatalf("ReadHello: %v", err)
	}
	needsCode, err := ini.ReadAccept(m2)
	if err != nil {
		t.Fatalf("ReadAccept: %v", err)
	}
	if !needsCode {
		t.Fatal("unconfirmed record must not enable resumption")
	}
}

func TestResumptionRejectsForeignHostStatic(t *testing.T) {
	host := makeParty(t)
	impostor := makeParty(t)
	signer := makeParty(t)

	rec := domain.PairingRecord{ID: "rec-1", HostStatic: host.pub, Confirmed: true}
	lookup := func(id string) (domain.PairingRecord, bool) { return rec, id == rec.ID }

	// The impostor claims the victim's pairing ID but holds its own static.
	ini := handshake.NewInitiator(impostor.priv, impostor.pub, rec.ID)
	res := handshake.NewResponder(signer.priv, signer.pub, lookup)

	m1, _ := ini.Hello()
	m2, err := res.ReadHello(m1, "")
	if err != nil {
		t.Fatalf("ReadHello: %v", err)
	}
	if _, err := ini.ReadAccept(m2); err != nil {
		t.Fatalf("ReadAccept: %v", err)
	}
	m3, _, err := ini.Finish("")
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := res.ReadFinish(m3); !errors.Is(err, handshake.ErrVerification) {
		t.Fatalf("want ErrVerification, got %v", err)
	}
	if res.State() != handshake.StateAborted {
		t.Fatal("responder must abort")
	}
}

func TestGarbageAborts(t *testing.T) {
	signer := makeParty(t)
	res := handshake.NewResponder(signer.priv, signer.pub, nil)
	if _, err := res.ReadHello([]byte{0xff, 0x00, 0x13}, "123456"); err == nil {
		t.Fatal("garbage hello must fail")
	}
	if res.State() != handshake.StateAborted {
		t.Fatal("responder must be aborted after a malformed message")
	}
}

func TestOutOfOrderMessageRejected(t *testing.T) {
	host := makeParty(t)
	ini := handshake.NewInitiator(host.priv, host.pub, "")
	if _, err := ini.ReadAccept([]byte{0x01}); !errors.Is(err, handshake.ErrState) {
		t.Fatalf("want ErrState, got %v", err)
	}
}

func TestGeneratePairingCode(t *testing.T) {
	code, err := handshake.GeneratePairingCode()
	if err != nil {
		t.Fatalf("GeneratePairingCode: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("want 6 digits, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
}

func TestIsHelloDistinguishesMessages(t *testing.T) {
	host := makeParty(t)
	signer := makeParty(t)

	ini := handshake.NewInitiator(host.priv, host.pub, "")
	res := handshake.NewResponder(signer.priv, signer.pub, nil)

	m1, err := ini.Hello()
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	if !handshake.IsHello(m1) {
		t.Fatal("hello not recognised")
	}
	m2, err := res.ReadHello(m1, "123456")
	if err != nil {
		t.Fatalf("ReadHello: %v", err)
	}
	if _, err := ini.ReadAccept(m2); err != nil {
		t.Fatalf("ReadAccept: %v", err)
	}
	m3, _, err := ini.Finish("123456")
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if handshake.IsHello(m3) {
		t.Fatal("finish misread as hello")
	}
	if handshake.IsHello([]byte("not cbor at all")) {
		t.Fatal("garbage misread as hello")
	}
}
