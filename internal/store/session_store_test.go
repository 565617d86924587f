package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/protocol/ratchet"
	"unhidra/internal/protocol/x3dh"
	"unhidra/internal/store"
	"unhidra/internal/testutils"
)

// ratchetPair returns a fresh initiator/responder pair of states.
func ratchetPair(t *testing.T, cfg ratchet.Config) (alice, bob *domain.RatchetState) {
	t.Helper()
	aliceID, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	bobID, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	spk, err := crypto.GenerateSignedPreKey(bobID, "spk-1", time.Now())
	require.NoError(t, err)

	initRes, err := x3dh.Initiate(aliceID, domain.PreKeyBundle{
		Device:                "bob",
		IdentityKey:           bobID.XPub,
		SigningKey:            bobID.EdPub,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.Pub,
		SignedPreKeySignature: spk.Signature,
	})
	require.NoError(t, err)
	respRes, err := x3dh.Respond(bobID, spk, nil, initRes.Initial)
	require.NoError(t, err)

	alice, err = ratchet.InitAsInitiator(cfg, initRes)
	require.NoError(t, err)
	bob, err = ratchet.InitAsResponder(cfg, respRes, spk)
	require.NoError(t, err)
	return alice, bob
}

func newStore(t *testing.T, timeout time.Duration) *store.SessionStore {
	t.Helper()
	store.UseLogger(testutils.TestLoggerSys(t, "STOR"))
	return store.NewSessionStore(store.NewMemoryStorage(), store.SessionStoreConfig{LeaseTimeout: timeout})
}

func TestStateCodec_ExactRoundTrip(t *testing.T) {
	alice, bob := ratchetPair(t, ratchet.Config{SkippedKeyCapacity: 3, MaxSkip: 50})
	var envs []domain.Envelope
	for i := 0; i < 8; i++ {
		env, err := ratchet.Encrypt(alice, []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		envs = append(envs, env)
	}
	// Deliver the last one first so the ring fills, wraps and records
	// evictions.
	_, err := ratchet.Decrypt(bob, envs[7])
	require.NoError(t, err)
	_, err = ratchet.Decrypt(bob, envs[5])
	require.NoError(t, err)

	for _, st := range []*domain.RatchetState{alice, bob} {
		raw, err := store.EncodeState(st)
		require.NoError(t, err)
		got, err := store.DecodeState(raw)
		require.NoError(t, err)
		require.Equal(t, st, got)
	}

	// The decoded state keeps working where the original left off.
	raw, err := store.EncodeState(bob)
	require.NoError(t, err)
	restored, err := store.DecodeState(raw)
	require.NoError(t, err)
	pt, err := ratchet.Decrypt(restored, envs[6])
	require.NoError(t, err)
	require.Equal(t, "m6", string(pt))
	// m0..m3 were evicted; the tombstone ring remembers the last three.
	_, err = ratchet.Decrypt(restored, envs[3])
	require.ErrorIs(t, err, domain.ErrCacheExhausted)
}

func TestStateCodec_RejectsGarbage(t *testing.T) {
	_, err := store.DecodeState(nil)
	require.Error(t, err)
	_, err = store.DecodeState([]byte{0x09, 0x01})
	require.Error(t, err)
	_, err = store.DecodeState([]byte{0x01, 0xff, 0x00})
	require.Error(t, err)
}

func TestLease_UnknownSession(t *testing.T) {
	s := newStore(t, time.Second)
	_, err := s.Lease(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, domain.ErrUnknownSession)

	// The failed lease must not keep the pair locked.
	alice, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(context.Background(), "alice", "bob", alice))
	lease, err := s.TryLease(context.Background(), "alice", "bob")
	require.NoError(t, err)
	lease.Release()
}

func TestLease_Contention(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 50*time.Millisecond)
	alice, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(ctx, "alice", "bob", alice))

	held, err := s.Lease(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = s.TryLease(ctx, "alice", "bob")
	require.ErrorIs(t, err, domain.ErrLeaseContention)

	start := time.Now()
	_, err = s.Lease(ctx, "alice", "bob")
	require.ErrorIs(t, err, domain.ErrLeaseContention)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// Other pairs are unaffected.
	carol, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(ctx, "alice", "carol", carol))

	held.Release()
	held.Release()
	again, err := s.TryLease(ctx, "alice", "bob")
	require.NoError(t, err)
	again.Release()
}

func TestLease_WaitsForRelease(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 5*time.Second)
	alice, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(ctx, "alice", "bob", alice))

	held, err := s.Lease(ctx, "alice", "bob")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		held.Release()
	}()
	lease, err := s.Lease(ctx, "alice", "bob")
	require.NoError(t, err)
	lease.Release()
}

func TestLease_ContextCancelled(t *testing.T) {
	s := newStore(t, 5*time.Second)
	alice, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(context.Background(), "alice", "bob", alice))

	held, err := s.Lease(context.Background(), "alice", "bob")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Lease(ctx, "alice", "bob")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithSession_CommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, time.Second)
	alice, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(ctx, "alice", "bob", alice))

	boom := errors.New("boom")
	err := s.WithSession(ctx, "alice", "bob", func(st *domain.RatchetState) error {
		if _, err := ratchet.Encrypt(st, []byte("lost")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithSession(ctx, "alice", "bob", func(st *domain.RatchetState) error {
		require.Equal(t, uint32(0), st.Send.N, "failed callback must not be committed")
		_, err := ratchet.Encrypt(st, []byte("kept"))
		return err
	})
	require.NoError(t, err)

	err = s.WithSession(ctx, "alice", "bob", func(st *domain.RatchetState) error {
		require.Equal(t, uint32(1), st.Send.N)
		return nil
	})
	require.NoError(t, err)

	phase, err := s.Phase(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEstablishedSender, phase)
}

func TestConcurrentEncryptsAreSerialised(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 10*time.Second)
	alice, bob := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(ctx, "alice", "bob", alice))

	const n = 32
	envs := make([]domain.Envelope, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return s.WithSession(ctx, "alice", "bob", func(st *domain.RatchetState) error {
				env, err := ratchet.Encrypt(st, []byte(fmt.Sprintf("m%d", i)))
				envs[i] = env
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	// Every counter was handed out exactly once.
	seen := make(map[uint32]bool)
	for _, env := range envs {
		require.False(t, seen[env.Header.MessageNumber], "counter %d reused", env.Header.MessageNumber)
		seen[env.Header.MessageNumber] = true
	}
	require.Len(t, seen, n)
	for i, env := range envs {
		pt, err := ratchet.Decrypt(bob, env)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("m%d", i), string(pt))
	}
}

func TestDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, time.Second)
	ok, err := s.Exists(ctx, "alice", "bob")
	require.NoError(t, err)
	require.False(t, ok)

	alice, _ := ratchetPair(t, ratchet.DefaultConfig())
	require.NoError(t, s.Create(ctx, "alice", "bob", alice))
	ok, err = s.Exists(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, "alice", "bob"))
	require.NoError(t, s.Delete(ctx, "alice", "bob"))
	phase, err := s.Phase(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseUninitialized, phase)
}
