package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"unhidra/internal/domain"
)

var sessionKeyPrefix = []byte("session/")

// LevelDBStorage keeps sessions in a LevelDB database. Every write is
// synced before it returns.
type LevelDBStorage struct {
	db   *leveldb.DB
	sync *opt.WriteOptions
}

// OpenLevelDBStorage opens (or creates) the database directory at path.
func OpenLevelDBStorage(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	log.Debugf("Opened leveldb session storage at %s", path)
	return &LevelDBStorage{db: db, sync: &opt.WriteOptions{Sync: true}}, nil
}

func sessionKey(local, peer domain.DeviceID) []byte {
	return append(append([]byte(nil), sessionKeyPrefix...), pairAD(local, peer)...)
}

func (l *LevelDBStorage) Save(ctx context.Context, local, peer domain.DeviceID, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Put(sessionKey(local, peer), state, l.sync)
}

func (l *LevelDBStorage) Load(ctx context.Context, local, peer domain.DeviceID) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := l.db.Get(sessionKey(local, peer), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (l *LevelDBStorage) Delete(ctx context.Context, local, peer domain.DeviceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Delete(sessionKey(local, peer), l.sync)
}

// Close closes the database.
func (l *LevelDBStorage) Close() error { return l.db.Close() }

var _ domain.SessionStorage = (*LevelDBStorage)(nil)
