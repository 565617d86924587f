package store

import (
	"bytes"
	"context"
	"sync"

	"unhidra/internal/domain"
)

// MemoryStorage keeps serialized sessions in process memory. It is meant
// for tests and ephemeral tools.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[pairKey][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[pairKey][]byte)}
}

func (m *MemoryStorage) Save(ctx context.Context, local, peer domain.DeviceID, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.data[pairKey{local, peer}] = bytes.Clone(state)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Load(ctx context.Context, local, peer domain.DeviceID) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	b, ok := m.data[pairKey{local, peer}]
	m.mu.RUnlock()
	return bytes.Clone(b), ok, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, local, peer domain.DeviceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, pairKey{local, peer})
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error { return nil }

var _ domain.SessionStorage = (*MemoryStorage)(nil)
