package store

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"unhidra/internal/domain"
	"unhidra/internal/protocol/ratchet"
)

// DefaultLeaseTimeout is how long Lease waits for a busy pair.
const DefaultLeaseTimeout = 2 * time.Second

// SessionStoreConfig tunes a SessionStore.
type SessionStoreConfig struct {
	// LeaseTimeout bounds how long Lease waits for another holder of the
	// same pair. Zero or negative fails immediately.
	LeaseTimeout time.Duration
}

// DefaultSessionStoreConfig returns the documented defaults.
func DefaultSessionStoreConfig() SessionStoreConfig {
	return SessionStoreConfig{LeaseTimeout: DefaultLeaseTimeout}
}

type pairKey struct {
	local, peer domain.DeviceID
}

func (k pairKey) String() string { return fmt.Sprintf("%s->%s", k.local, k.peer) }

// pairLock is a one-slot semaphore. Holding the slot is holding the lease.
// refs counts holders and waiters; it is only touched inside the lock
// table's Compute, and the entry is removed when it drops to zero.
type pairLock struct {
	ch   chan struct{}
	refs int
}

// SessionStore maps (local, peer) pairs to ratchet states and serialises
// every read-modify-write of a pair through an exclusive lease. Operations
// on different pairs never wait on each other.
type SessionStore struct {
	storage domain.SessionStorage
	cfg     SessionStoreConfig
	locks   *xsync.MapOf[pairKey, *pairLock]
}

// NewSessionStore returns a SessionStore persisting through storage.
func NewSessionStore(storage domain.SessionStorage, cfg SessionStoreConfig) *SessionStore {
	return &SessionStore{
		storage: storage,
		cfg:     cfg,
		locks:   xsync.NewMapOf[pairKey, *pairLock](),
	}
}

func (s *SessionStore) ref(key pairKey) *pairLock {
	l, _ := s.locks.Compute(key, func(l *pairLock, loaded bool) (*pairLock, bool) {
		if !loaded {
			l = &pairLock{ch: make(chan struct{}, 1)}
		}
		l.refs++
		return l, false
	})
	return l
}

func (s *SessionStore) unref(key pairKey) {
	s.locks.Compute(key, func(l *pairLock, loaded bool) (*pairLock, bool) {
		if !loaded {
			return l, true
		}
		l.refs--
		return l, l.refs <= 0
	})
}

// unlock gives the slot back and drops the holder's reference.
func (s *SessionStore) unlock(key pairKey, l *pairLock) {
	<-l.ch
	s.unref(key)
}

func (s *SessionStore) acquireLock(ctx context.Context, key pairKey, wait bool) (*pairLock, error) {
	l := s.ref(key)

	select {
	case l.ch <- struct{}{}:
		return l, nil
	default:
	}
	if !wait || s.cfg.LeaseTimeout <= 0 {
		s.unref(key)
		log.Debugf("Lease for %s is busy", key)
		return nil, fmt.Errorf("%w: %s", domain.ErrLeaseContention, key)
	}

	timer := time.NewTimer(s.cfg.LeaseTimeout)
	defer timer.Stop()
	select {
	case l.ch <- struct{}{}:
		return l, nil
	case <-timer.C:
		s.unref(key)
		log.Debugf("Lease for %s still busy after %s", key, s.cfg.LeaseTimeout)
		return nil, fmt.Errorf("%w: %s", domain.ErrLeaseContention, key)
	case <-ctx.Done():
		s.unref(key)
		return nil, ctx.Err()
	}
}

func (s *SessionStore) acquire(ctx context.Context, local, peer domain.DeviceID, wait bool) (*Lease, error) {
	key := pairKey{local: local, peer: peer}
	l, err := s.acquireLock(ctx, key, wait)
	if err != nil {
		return nil, err
	}
	lease := &Lease{store: s, key: key, lock: l}

	raw, ok, err := s.storage.Load(ctx, local, peer)
	if err != nil {
		lease.Release()
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	if ok {
		st, err := DecodeState(raw)
		if err != nil {
			lease.Release()
			return nil, fmt.Errorf("load session %s: %w", key, err)
		}
		lease.state = st
	}
	return lease, nil
}

// Acquire takes the pair's lease whether or not a session exists. State is
// nil on the returned lease when none does; callers install one with
// Replace and persist it with Commit.
func (s *SessionStore) Acquire(ctx context.Context, local, peer domain.DeviceID) (*Lease, error) {
	return s.acquire(ctx, local, peer, true)
}

// Lease takes the pair's exclusive lease, waiting up to the configured
// timeout, and loads its state. It fails with domain.ErrLeaseContention
// when the pair stays busy and domain.ErrUnknownSession when no session
// exists.
func (s *SessionStore) Lease(ctx context.Context, local, peer domain.DeviceID) (*Lease, error) {
	return s.leaseExisting(ctx, local, peer, true)
}

// TryLease is Lease without waiting.
func (s *SessionStore) TryLease(ctx context.Context, local, peer domain.DeviceID) (*Lease, error) {
	return s.leaseExisting(ctx, local, peer, false)
}

func (s *SessionStore) leaseExisting(ctx context.Context, local, peer domain.DeviceID, wait bool) (*Lease, error) {
	lease, err := s.acquire(ctx, local, peer, wait)
	if err != nil {
		return nil, err
	}
	if lease.state == nil {
		lease.Release()
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSession, lease.key)
	}
	return lease, nil
}

// WithSession runs fn on the pair's state under its lease. The state is
// committed only when fn returns nil; the lease is always released.
func (s *SessionStore) WithSession(
	ctx context.Context,
	local, peer domain.DeviceID,
	fn func(st *domain.RatchetState) error,
) error {
	lease, err := s.Lease(ctx, local, peer)
	if err != nil {
		return err
	}
	defer lease.Release()

	if err := fn(lease.State()); err != nil {
		return err
	}
	return lease.Commit(ctx)
}

// Create stores st for the pair, replacing any previous session. The store
// takes ownership of st and wipes it once persisted.
func (s *SessionStore) Create(ctx context.Context, local, peer domain.DeviceID, st *domain.RatchetState) error {
	lease, err := s.Acquire(ctx, local, peer)
	if err != nil {
		return err
	}
	defer lease.Release()

	lease.Replace(st)
	return lease.Commit(ctx)
}

// Delete removes the pair's session. Deleting an unknown pair is not an
// error.
func (s *SessionStore) Delete(ctx context.Context, local, peer domain.DeviceID) error {
	key := pairKey{local: local, peer: peer}
	l, err := s.acquireLock(ctx, key, true)
	if err != nil {
		return err
	}
	defer s.unlock(key, l)

	if err := s.storage.Delete(ctx, local, peer); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	log.Debugf("Deleted session %s", key)
	return nil
}

// Exists reports whether a session is stored for the pair. It does not
// take the lease.
func (s *SessionStore) Exists(ctx context.Context, local, peer domain.DeviceID) (bool, error) {
	_, ok, err := s.storage.Load(ctx, local, peer)
	return ok, err
}

// Phase reports the pair's session phase without taking the lease.
func (s *SessionStore) Phase(ctx context.Context, local, peer domain.DeviceID) (domain.SessionPhase, error) {
	raw, ok, err := s.storage.Load(ctx, local, peer)
	if err != nil {
		return domain.PhaseUninitialized, err
	}
	if !ok {
		return domain.PhaseUninitialized, nil
	}
	st, err := DecodeState(raw)
	if err != nil {
		return domain.PhaseUninitialized, err
	}
	defer ratchet.Wipe(st)
	return ratchet.Phase(st), nil
}
