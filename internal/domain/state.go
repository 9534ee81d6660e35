package domain

// DeviceState tracks whether a wallet secret exists and whether it is
// decrypted into working memory. It is independent of channel state: a
// session can be established while the device is Locked.
type DeviceState uint8

const (
	// StateUninitialized means no wallet secret exists yet.
	StateUninitialized DeviceState = iota
	// StateLocked means a secret exists but is not decrypted.
	StateLocked
	// StateUnlocked means the secret is available for signing.
	StateUnlocked
)

func (s DeviceState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	}
	return "unknown"
}

// Network identifies the Bitcoin network the wallet operates on.
type Network string

const (
	NetworkMainnet Network = "bitcoin"
	NetworkTestnet Network = "testnet"
	NetworkSignet  Network = "signet"
	NetworkRegtest Network = "regtest"
)

// Valid reports whether n names a known network.
func (n Network) Valid() bool {
	switch n {
	case NetworkMainnet, NetworkTestnet, NetworkSignet, NetworkRegtest:
		return true
	}
	return false
}
