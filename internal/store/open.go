package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

// Backend names a SessionStorage implementation.
type Backend string

const (
	BackendFile    Backend = "file"
	BackendSQLite  Backend = "sqlite"
	BackendLevelDB Backend = "leveldb"
	BackendMemory  Backend = "memory"
)

// ClosableStorage is a SessionStorage holding resources.
type ClosableStorage interface {
	domain.SessionStorage
	Close() error
}

// OpenStorage opens the named backend under dir. When passphrase is not
// empty every record is sealed under a key derived from it.
func OpenStorage(ctx context.Context, backend Backend, dir, passphrase string) (ClosableStorage, error) {
	if backend != BackendMemory {
		if err := os.MkdirAll(dir, recordDirMode); err != nil {
			return nil, err
		}
	}
	var (
		inner ClosableStorage
		err   error
	)
	switch backend {
	case BackendFile, "":
		inner, err = OpenFileStorage(ctx, filepath.Join(dir, "sessions"))
	case BackendSQLite:
		inner, err = OpenSQLiteStorage(ctx, filepath.Join(dir, "sessions.sqlite"))
	case BackendLevelDB:
		inner, err = OpenLevelDBStorage(filepath.Join(dir, "sessions.ldb"))
	case BackendMemory:
		inner = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	if passphrase == "" {
		return inner, nil
	}

	key, err := StorageKey(dir, passphrase)
	if err != nil {
		inner.Close()
		return nil, err
	}
	defer crypto.Wipe(key)
	sealed, err := NewSealedStorage(inner, key)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return sealed, nil
}
