package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"unhidra/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	local_device TEXT    NOT NULL,
	peer_device  TEXT    NOT NULL,
	state        BLOB    NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (local_device, peer_device)
)`

// SQLiteStorage keeps sessions in a single SQLite table. The database runs
// in WAL mode with synchronous=FULL so a committed Save survives power
// loss.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLiteStorage opens (or creates) the database at path.
func OpenSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	log.Debugf("Opened sqlite session storage at %s", path)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Save(ctx context.Context, local, peer domain.DeviceID, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (local_device, peer_device, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (local_device, peer_device)
		DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		string(local), string(peer), state, time.Now().Unix())
	return err
}

func (s *SQLiteStorage) Load(ctx context.Context, local, peer domain.DeviceID) ([]byte, bool, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE local_device = ? AND peer_device = ?`,
		string(local), string(peer)).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, local, peer domain.DeviceID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE local_device = ? AND peer_device = ?`,
		string(local), string(peer))
	return err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error { return s.db.Close() }

var _ domain.SessionStorage = (*SQLiteStorage)(nil)
