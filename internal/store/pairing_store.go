package store

import (
	"crypto/subtle"
	"path/filepath"
	"sync"

	"coldtap/internal/domain"
)

const pairingsFilename = "pairings.json"

// PairingFileStore persists pairing records across power cycles.
type PairingFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPairingFileStore returns a PairingFileStore rooted at dir.
func NewPairingFileStore(dir string) *PairingFileStore {
	return &PairingFileStore{dir: dir}
}

// SavePairing writes or replaces a record.
func (s *PairingFileStore) SavePairing(rec domain.PairingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, pairingsFilename)
	records := map[string]domain.PairingRecord{}
	_ = readJSON(path, &records)
	records[rec.ID] = rec
	return writeJSON(path, records, 0o600)
}

// LoadPairing retrieves a record by ID.
func (s *PairingFileStore) LoadPairing(id string) (domain.PairingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, pairingsFilename)
	records := map[string]domain.PairingRecord{}
	if err := readJSON(path, &records); err != nil {
		return domain.PairingRecord{}, false, err
	}
	rec, ok := records[id]
	return rec, ok, nil
}

// FindByHostStatic returns the confirmed record holding the given host key.
func (s *PairingFileStore) FindByHostStatic(pub domain.X25519Public) (domain.PairingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, pairingsFilename)
	records := map[string]domain.PairingRecord{}
	if err := readJSON(path, &records); err != nil {
		return domain.PairingRecord{}, false, err
	}
	for _, rec := range records {
		if rec.Confirmed && subtle.ConstantTimeCompare(rec.HostStatic.Slice(), pub.Slice()) == 1 {
			return rec, true, nil
		}
	}
	return domain.PairingRecord{}, false, nil
}

// DeleteAll removes every pairing record. Used by device wipe.
func (s *PairingFileStore) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, pairingsFilename), map[string]domain.PairingRecord{}, 0o600)
}

// Compile-time assertion that PairingFileStore implements domain.PairingStore.
var _ domain.PairingStore = (*PairingFileStore)(nil)
