package host

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coldtap/internal/domain"
)

const trustFilename = "known_signers.json"

// ErrSignerChanged means a signer presented a different static key than the
// one pinned at pairing time. This is the host-side impostor defense.
var ErrSignerChanged = errors.New("host: signer key changed since pairing")

// knownSigner pins one signer identity the host has paired with.
type knownSigner struct {
	Static     string `json:"static"`
	Label      string `json:"label,omitempty"`
	CreatedUTC int64  `json:"created_utc"`
}

// TrustStore pins signer static keys on first contact, keyed by fingerprint.
type TrustStore struct {
	dir string
	mu  sync.Mutex
}

// NewTrustStore returns a TrustStore rooted at dir.
func NewTrustStore(dir string) *TrustStore {
	return &TrustStore{dir: dir}
}

func (s *TrustStore) load() (map[string]knownSigner, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, trustFilename))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]knownSigner{}, nil
	}
	if err != nil {
		return nil, err
	}
	signers := map[string]knownSigner{}
	if err := json.Unmarshal(data, &signers); err != nil {
		return nil, err
	}
	return signers, nil
}

// Check verifies a signer key against the pinned record, if one exists. A new
// fingerprint passes; a known fingerprint with a different key fails.
func (s *TrustStore) Check(fingerprint string, static domain.X25519Public) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	signers, err := s.load()
	if err != nil {
		return err
	}
	rec, ok := signers[fingerprint]
	if !ok {
		return nil
	}
	if rec.Static != hex.EncodeToString(static.Slice()) {
		return ErrSignerChanged
	}
	return nil
}

// Known reports whether a signer with this fingerprint was paired before.
func (s *TrustStore) Known(fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signers, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := signers[fingerprint]
	return ok, nil
}

// Pin records a signer identity after a successful pairing.
func (s *TrustStore) Pin(fingerprint string, static domain.X25519Public, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	signers, err := s.load()
	if err != nil {
		return err
	}
	signers[fingerprint] = knownSigner{
		Static:     hex.EncodeToString(static.Slice()),
		Label:      label,
		CreatedUTC: time.Now().UTC().Unix(),
	}
	b, err := json.MarshalIndent(signers, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, trustFilename), b, 0o600)
}
