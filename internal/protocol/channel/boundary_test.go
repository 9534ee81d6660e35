package channel

import (
	"encoding/binary"
	"errors"
	"testing"

	"coldtap/internal/domain"
)

// mirroredPair builds two channels holding mirrored directional keys, as a
// completed handshake would.
func mirroredPair(t *testing.T) (sender, receiver *SecureChannel) {
	t.Helper()
	var k1, k2 [32]byte
	k1[0], k2[0] = 0x01, 0x02

	sender, err := New(domain.SessionKeys{Send: k1, Recv: k2}, 0)
	if err != nil {
		t.Fatalf("New sender: %v", err)
	}
	receiver, err = New(domain.SessionKeys{Send: k2, Recv: k1}, 0)
	if err != nil {
		t.Fatalf("New receiver: %v", err)
	}
	return sender, receiver
}

func TestSealCounterCeiling(t *testing.T) {
	sender, receiver := mirroredPair(t)

	// The last permitted counter value still seals and opens.
	sender.send = maxCounter - 1
	receiver.recv = maxCounter - 1
	sealed, err := sender.Seal([]byte("last message"))
	if err != nil {
		t.Fatalf("Seal at ceiling-1: %v", err)
	}
	if got := binary.BigEndian.Uint64(sealed[:counterSize]); got != maxCounter-1 {
		t.Fatalf("counter prefix = %d, want %d", got, maxCounter-1)
	}
	if _, err := receiver.Open(sealed); err != nil {
		t.Fatalf("Open at ceiling-1: %v", err)
	}

	// The next seal hits the ceiling and must fail terminally.
	if _, err := sender.Seal([]byte("one too many")); !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("Seal at ceiling: want ErrCounterExhausted, got %v", err)
	}
}

func TestOpenCounterCeiling(t *testing.T) {
	_, receiver := mirroredPair(t)
	receiver.recv = maxCounter

	// A ciphertext claiming the ceiling counter is rejected before any MAC
	// work, regardless of its contents.
	forged := make([]byte, Overhead)
	binary.BigEndian.PutUint64(forged[:counterSize], maxCounter)
	if _, err := receiver.Open(forged); !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("Open at ceiling: want ErrCounterExhausted, got %v", err)
	}
}
