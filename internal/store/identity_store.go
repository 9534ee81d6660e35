package store

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"coldtap/internal/crypto"
	"coldtap/internal/domain"
)

const identityFilename = "identity.json"

type identityFile struct {
	Private string `json:"private"`
	Public  string `json:"public"`
}

// IdentityFileStore persists a long-term X25519 identity. Both ends of the
// channel use one: the signer for its device key, the host for the key its
// pairings are bound to.
type IdentityFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir}
}

// LoadOrCreate returns the stored identity, generating and persisting a fresh
// one on first use.
func (s *IdentityFileStore) LoadOrCreate() (domain.X25519Private, domain.X25519Public, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var priv domain.X25519Private
	var pub domain.X25519Public

	path := filepath.Join(s.dir, identityFilename)
	var f identityFile
	if err := readJSON(path, &f); err != nil {
		return priv, pub, err
	}
	if f.Private != "" {
		pb, perr := hex.DecodeString(f.Private)
		qb, qerr := hex.DecodeString(f.Public)
		if perr != nil || qerr != nil || len(pb) != 32 || len(qb) != 32 {
			return priv, pub, fmt.Errorf("store: corrupt identity file %s", path)
		}
		copy(priv[:], pb)
		copy(pub[:], qb)
		return priv, pub, nil
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return priv, pub, err
	}
	f = identityFile{
		Private: hex.EncodeToString(priv.Slice()),
		Public:  hex.EncodeToString(pub.Slice()),
	}
	if err := writeJSON(path, f, 0o600); err != nil {
		return priv, pub, err
	}
	return priv, pub, nil
}

// Delete removes the stored identity.
func (s *IdentityFileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, identityFilename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
