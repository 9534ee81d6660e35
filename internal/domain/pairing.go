package domain

// PairingRecord binds a host's long-term public key to this signer. It is
// written by the pairing flow and read by the handshake engine to decide
// whether an abbreviated resumption handshake is permitted.
//
// A record is only trusted once Confirmed is set; an unconfirmed record must
// never unlock privileged commands or the resumption path.
type PairingRecord struct {
	ID         string       `json:"id"`
	HostStatic X25519Public `json:"host_static"`
	Confirmed  bool         `json:"confirmed"`
	Label      string       `json:"label,omitempty"`
	CreatedUTC int64        `json:"created_utc"`
}
