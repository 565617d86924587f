package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

const saltFilename = "storage.salt"

// SealedStorage encrypts every record before handing it to the wrapped
// storage. The pair is bound as associated data, so a record copied to
// another pair's slot fails to open.
type SealedStorage struct {
	inner domain.SessionStorage
	key   []byte
}

// NewSealedStorage wraps inner with a 32-byte key.
func NewSealedStorage(inner domain.SessionStorage, key []byte) (*SealedStorage, error) {
	if len(key) != crypto.KeyBytes {
		return nil, fmt.Errorf("sealed storage key must be %d bytes", crypto.KeyBytes)
	}
	return &SealedStorage{inner: inner, key: bytes.Clone(key)}, nil
}

// pairAD encodes (local, peer) unambiguously.
func pairAD(local, peer domain.DeviceID) []byte {
	out := binary.AppendUvarint(nil, uint64(len(local)))
	out = append(out, local...)
	out = binary.AppendUvarint(out, uint64(len(peer)))
	return append(out, peer...)
}

func (s *SealedStorage) Save(ctx context.Context, local, peer domain.DeviceID, state []byte) error {
	sealed, err := crypto.Seal(s.key, state, pairAD(local, peer))
	if err != nil {
		return err
	}
	return s.inner.Save(ctx, local, peer, sealed)
}

func (s *SealedStorage) Load(ctx context.Context, local, peer domain.DeviceID) ([]byte, bool, error) {
	sealed, ok, err := s.inner.Load(ctx, local, peer)
	if err != nil || !ok {
		return nil, ok, err
	}
	state, err := crypto.Open(s.key, sealed, pairAD(local, peer))
	if err != nil {
		return nil, false, fmt.Errorf("open session record: %w", err)
	}
	return state, true, nil
}

func (s *SealedStorage) Delete(ctx context.Context, local, peer domain.DeviceID) error {
	return s.inner.Delete(ctx, local, peer)
}

// Close wipes the key and closes the wrapped storage when it can be closed.
func (s *SealedStorage) Close() error {
	crypto.Wipe(s.key)
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// StorageKey derives the sealing key for a storage directory from a
// passphrase. The salt lives next to the data and is created on first use.
func StorageKey(dir, passphrase string) ([]byte, error) {
	if err := os.MkdirAll(dir, recordDirMode); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, saltFilename)
	salt, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		if salt, err = crypto.NewSalt(); err != nil {
			return nil, err
		}
		if err := writeFile(path, salt, 0o600); err != nil {
			return nil, err
		}
	}
	return crypto.DeriveKEK(passphrase, salt)
}

var _ domain.SessionStorage = (*SealedStorage)(nil)
