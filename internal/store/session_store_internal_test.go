package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unhidra/internal/domain"
)

func TestSessionStore_LockTableShrinks(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemoryStorage(), SessionStoreConfig{LeaseTimeout: 20 * time.Millisecond})

	for _, peer := range []string{"bob", "carol", "dave"} {
		lease, err := s.Acquire(ctx, "alice", domain.DeviceID(peer))
		require.NoError(t, err)
		lease.Release()
	}
	require.Zero(t, s.locks.Size())

	held, err := s.Acquire(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = s.Acquire(ctx, "alice", "bob")
	require.Error(t, err)
	_, err = s.TryLease(ctx, "alice", "bob")
	require.Error(t, err)
	require.Equal(t, 1, s.locks.Size())

	held.Release()
	held.Release()
	require.Zero(t, s.locks.Size())

	require.NoError(t, s.Delete(ctx, "alice", "bob"))
	require.Zero(t, s.locks.Size())

	// The pair is usable again after its entry was dropped.
	lease, err := s.Acquire(ctx, "alice", "bob")
	require.NoError(t, err)
	lease.Release()
	require.Zero(t, s.locks.Size())
}
