package store

import (
	"os"
	"path/filepath"
	"sync"

	"coldtap/internal/domain"
)

const secretFilename = "secret.enc"

// SecretFileStore persists the wallet secret encrypted under the device
// passphrase.
type SecretFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewSecretFileStore returns a SecretFileStore rooted at dir.
func NewSecretFileStore(dir string) *SecretFileStore {
	return &SecretFileStore{dir: dir}
}

// SaveSecret encrypts and writes the secret blob.
func (s *SecretFileStore) SaveSecret(passphrase string, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := encrypt(passphrase, plaintext)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, secretFilename), blob, 0o600)
}

// LoadSecret reads and decrypts the secret blob. A wrong passphrase fails
// the AEAD open, indistinguishable from corruption.
func (s *SecretFileStore) LoadSecret(passphrase string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(filepath.Join(s.dir, secretFilename))
	if err != nil {
		return nil, err
	}
	return decrypt(passphrase, blob)
}

// Exists reports whether a secret is persisted.
func (s *SecretFileStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(filepath.Join(s.dir, secretFilename))
	return err == nil
}

// Delete erases the persisted secret.
func (s *SecretFileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, secretFilename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Compile-time assertion that SecretFileStore implements domain.SecretStore.
var _ domain.SecretStore = (*SecretFileStore)(nil)
