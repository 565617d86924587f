package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"unhidra/internal/domain"
	"unhidra/internal/protocol/ratchet"
)

var (
	errLeaseReleased = errors.New("lease already released")
	errNoState       = errors.New("lease holds no session state")
)

// Lease is exclusive access to one pair's session. It must be released
// exactly once; Release is idempotent so a deferred call is always safe.
type Lease struct {
	store *SessionStore
	key   pairKey
	lock  *pairLock
	state *domain.RatchetState

	mu       sync.Mutex
	released bool
}

// Local returns the local device of the leased pair.
func (l *Lease) Local() domain.DeviceID { return l.key.local }

// Peer returns the remote device of the leased pair.
func (l *Lease) Peer() domain.DeviceID { return l.key.peer }

// State returns the leased state for in-place mutation. It is nil when the
// lease came from Acquire on an empty pair.
func (l *Lease) State() *domain.RatchetState { return l.state }

// Replace swaps in a new state, wiping the previous one. Nothing is
// persisted until Commit.
func (l *Lease) Replace(st *domain.RatchetState) {
	if l.state != nil && l.state != st {
		ratchet.Wipe(l.state)
	}
	l.state = st
}

// Commit durably writes the current state.
func (l *Lease) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return errLeaseReleased
	}
	if l.state == nil {
		return errNoState
	}
	raw, err := EncodeState(l.state)
	if err != nil {
		return err
	}
	if err := l.store.storage.Save(ctx, l.key.local, l.key.peer, raw); err != nil {
		return fmt.Errorf("save session %s: %w", l.key, err)
	}
	return nil
}

// Release gives the pair back. The in-memory state is wiped; callers must
// not use State afterwards.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	ratchet.Wipe(l.state)
	l.store.unlock(l.key, l.lock)
}
