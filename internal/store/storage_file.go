package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rogpeppe/go-internal/lockedfile"
	"github.com/zeebo/blake3"

	"unhidra/internal/domain"
)

const (
	lockFilename  = "LOCK"
	recordSuffix  = ".state"
	recordDirMode = 0o700
)

// FileStorage keeps one file per pair under dir. Writes go through a
// synced temp file and a rename, so a record is either the old or the new
// version after a crash. Record names are a BLAKE3 hash of the pair, so
// device ids never appear on disk. A lock file keeps a second process from
// opening the same directory.
type FileStorage struct {
	dir  string
	lock *lockedfile.File
}

// OpenFileStorage creates dir if needed and takes its lock, waiting until
// ctx is done if another process holds it.
func OpenFileStorage(ctx context.Context, dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, recordDirMode); err != nil {
		return nil, err
	}
	lf, err := lockDir(ctx, filepath.Join(dir, lockFilename))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	log.Debugf("Opened file session storage at %s", dir)
	return &FileStorage{dir: dir, lock: lf}, nil
}

// lockDir acquires the lock file at path. lockedfile.Create blocks, so it
// runs in its own goroutine and the result is abandoned (and closed) if
// ctx ends first.
func lockDir(ctx context.Context, path string) (*lockedfile.File, error) {
	cf := make(chan *lockedfile.File)
	cerr := make(chan error)
	go func() {
		f, err := lockedfile.Create(path)
		if err != nil {
			cerr <- err
		} else {
			cf <- f
		}
	}()

	select {
	case f := <-cf:
		_, _ = fmt.Fprintf(f, "PID=%d\n", os.Getpid())
		return f, nil
	case err := <-cerr:
		return nil, err
	case <-ctx.Done():
		go func() {
			select {
			case <-cerr:
			case f := <-cf:
				f.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (f *FileStorage) recordPath(local, peer domain.DeviceID) string {
	sum := blake3.Sum256(pairAD(local, peer))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+recordSuffix)
}

func (f *FileStorage) Save(ctx context.Context, local, peer domain.DeviceID, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFile(f.recordPath(local, peer), state, 0o600)
}

func (f *FileStorage) Load(ctx context.Context, local, peer domain.DeviceID) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := readFile(f.recordPath(local, peer))
	if err != nil {
		return nil, false, err
	}
	return b, b != nil, nil
}

func (f *FileStorage) Delete(ctx context.Context, local, peer domain.DeviceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return removeFile(f.recordPath(local, peer))
}

// Close releases the directory lock.
func (f *FileStorage) Close() error {
	return f.lock.Close()
}

var _ domain.SessionStorage = (*FileStorage)(nil)
