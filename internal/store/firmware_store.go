package store

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"coldtap/internal/domain"
)

const (
	fwImageFilename = "fw_staged.bin"
	fwMetaFilename  = "fw_meta.json"
)

var (
	// ErrFwOffset means a chunk arrived out of sequence.
	ErrFwOffset = errors.New("store: firmware chunk offset out of sequence")
	// ErrFwChecksum means the staged image does not match the announced
	// checksum.
	ErrFwChecksum = errors.New("store: firmware checksum mismatch")
	// ErrFwNotStaged means no transfer is in progress.
	ErrFwNotStaged = errors.New("store: no staged firmware transfer")
	// ErrFwTooLarge means a chunk would exceed the announced size.
	ErrFwTooLarge = errors.New("store: firmware chunk exceeds announced size")
)

type fwMeta struct {
	Size       uint32 `json:"size"`
	Checksum   []byte `json:"checksum"`
	NextOffset uint32 `json:"next_offset"`
}

// FirmwareFileStore stages a chunked firmware transfer on disk so it
// survives physical interruption between taps.
type FirmwareFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFirmwareFileStore returns a FirmwareFileStore rooted at dir.
func NewFirmwareFileStore(dir string) *FirmwareFileStore {
	return &FirmwareFileStore{dir: dir}
}

// Begin stages a transfer. Restarting with the checksum and size of an
// in-progress transfer resumes it at the recorded offset; anything else
// restarts from zero.
func (s *FirmwareFileStore) Begin(size uint32, checksum []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta fwMeta
	if err := readJSON(filepath.Join(s.dir, fwMetaFilename), &meta); err == nil &&
		meta.Size == size && bytes.Equal(meta.Checksum, checksum) && meta.NextOffset > 0 {
		return meta.NextOffset, nil
	}

	if err := os.WriteFile(filepath.Join(s.dir, fwImageFilename), nil, 0o600); err != nil {
		return 0, err
	}
	meta = fwMeta{Size: size, Checksum: append([]byte(nil), checksum...)}
	if err := writeJSON(filepath.Join(s.dir, fwMetaFilename), meta, 0o600); err != nil {
		return 0, err
	}
	return 0, nil
}

// Append writes a chunk at offset, which must equal the next expected one.
func (s *FirmwareFileStore) Append(offset uint32, data []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta fwMeta
	if err := readJSON(filepath.Join(s.dir, fwMetaFilename), &meta); err != nil {
		return 0, err
	}
	if len(meta.Checksum) == 0 {
		return 0, ErrFwNotStaged
	}
	if offset != meta.NextOffset {
		return meta.NextOffset, fmt.Errorf("%w: got %d, want %d", ErrFwOffset, offset, meta.NextOffset)
	}
	if uint64(offset)+uint64(len(data)) > uint64(meta.Size) {
		return meta.NextOffset, ErrFwTooLarge
	}

	f, err := os.OpenFile(filepath.Join(s.dir, fwImageFilename), os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.WriteAt(data, int64(offset)); err != nil {
		return 0, err
	}

	meta.NextOffset = offset + uint32(len(data))
	if err := writeJSON(filepath.Join(s.dir, fwMetaFilename), meta, 0o600); err != nil {
		return 0, err
	}
	return meta.NextOffset, nil
}

// Finish verifies the staged image against the announced checksum and ends
// the transfer.
func (s *FirmwareFileStore) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta fwMeta
	if err := readJSON(filepath.Join(s.dir, fwMetaFilename), &meta); err != nil {
		return err
	}
	if len(meta.Checksum) == 0 {
		return ErrFwNotStaged
	}
	if meta.NextOffset != meta.Size {
		return fmt.Errorf("%w: received %d of %d bytes", ErrFwChecksum, meta.NextOffset, meta.Size)
	}
	image, err := os.ReadFile(filepath.Join(s.dir, fwImageFilename))
	if err != nil {
		return err
	}
	sum := sha256.Sum256(image)
	if !bytes.Equal(sum[:], meta.Checksum) {
		return ErrFwChecksum
	}
	return os.Remove(filepath.Join(s.dir, fwMetaFilename))
}

// Abort drops any staged transfer.
func (s *FirmwareFileStore) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.dir, fwMetaFilename)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, fwImageFilename)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Compile-time assertion that FirmwareFileStore implements domain.FirmwareStore.
var _ domain.FirmwareStore = (*FirmwareFileStore)(nil)
