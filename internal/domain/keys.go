package domain

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// SessionKeys are the directional symmetric keys derived by a completed
// handshake. Send encrypts traffic we originate; Recv authenticates traffic
// from the peer. The two sides hold mirrored copies.
type SessionKeys struct {
	Send [32]byte
	Recv [32]byte
}

// Zero wipes both keys.
func (k *SessionKeys) Zero() {
	for i := range k.Send {
		k.Send[i] = 0
	}
	for i := range k.Recv {
		k.Recv[i] = 0
	}
}

// Role distinguishes the two ends of the channel.
type Role uint8

const (
	// RoleHost initiates the handshake.
	RoleHost Role = iota
	// RoleSigner responds to it.
	RoleSigner
)
