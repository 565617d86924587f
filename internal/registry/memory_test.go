package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/registry"
	"unhidra/internal/testutils"
)

func upload(t *testing.T, n int) (domain.PreKeyUpload, []domain.OneTimePreKeyPair) {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	spk, err := crypto.GenerateSignedPreKey(id, "spk-1", time.Now())
	require.NoError(t, err)
	opks, err := crypto.GenerateOneTimePreKeys(n)
	require.NoError(t, err)
	up := domain.PreKeyUpload{
		Device:                "bob",
		IdentityKey:           id.XPub,
		SigningKey:            id.EdPub,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.Pub,
		SignedPreKeySignature: spk.Signature,
	}
	for _, p := range opks {
		up.OneTimePreKeys = append(up.OneTimePreKeys, p.Public())
	}
	return up, opks
}

func newRegistry(t *testing.T) *registry.MemoryRegistry {
	registry.UseLogger(testutils.TestLoggerSys(t, "REGY"))
	return registry.NewMemoryRegistry()
}

func TestFetch_UnknownDevice(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Fetch(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrBundleNotFound)
}

func TestFetch_HandsOutEachOneTimeKeyOnce(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	up, _ := upload(t, 2)
	bundleID, err := r.Publish(ctx, "bob", up)
	require.NoError(t, err)
	require.NotEmpty(t, bundleID)

	b1, err := r.Fetch(ctx, "bob")
	require.NoError(t, err)
	b2, err := r.Fetch(ctx, "bob")
	require.NoError(t, err)
	b3, err := r.Fetch(ctx, "bob")
	require.NoError(t, err)

	require.Equal(t, bundleID, b1.BundleID)
	require.NotNil(t, b1.OneTimePreKey)
	require.NotNil(t, b2.OneTimePreKey)
	require.NotEqual(t, b1.OneTimePreKey.ID, b2.OneTimePreKey.ID)
	require.Nil(t, b3.OneTimePreKey, "pool exhausted")
	require.Equal(t, up.SignedPreKey, b3.SignedPreKey)
	require.Zero(t, r.Available("bob"))
}

func TestFetch_ConcurrentInitiatorsGetDistinctKeys(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	up, _ := upload(t, 50)
	_, err := r.Publish(ctx, "bob", up)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[domain.OneTimePreKeyID]int)
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := r.Fetch(ctx, "bob")
			if err != nil || b.OneTimePreKey == nil {
				return
			}
			mu.Lock()
			seen[b.OneTimePreKey.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 50)
	for id, n := range seen {
		require.Equal(t, 1, n, "one-time key %s handed out twice", id)
	}
}

func TestConsumeOneTimePreKey(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	up, opks := upload(t, 3)
	_, err := r.Publish(ctx, "bob", up)
	require.NoError(t, err)

	b, err := r.Fetch(ctx, "bob")
	require.NoError(t, err)
	issued := b.OneTimePreKey.ID

	require.NoError(t, r.ConsumeOneTimePreKey(ctx, "bob", issued))
	err = r.ConsumeOneTimePreKey(ctx, "bob", issued)
	require.ErrorIs(t, err, domain.ErrPreKeyConsumed)

	// A key still in the pool can be consumed too and is then never
	// handed out.
	var pooled domain.OneTimePreKeyID
	for _, p := range opks {
		if p.ID != issued {
			pooled = p.ID
			break
		}
	}
	require.NoError(t, r.ConsumeOneTimePreKey(ctx, "bob", pooled))
	require.Equal(t, 1, r.Available("bob"))

	err = r.ConsumeOneTimePreKey(ctx, "bob", "never-issued")
	require.ErrorIs(t, err, domain.ErrPreKeyConsumed)
	err = r.ConsumeOneTimePreKey(ctx, "carol", issued)
	require.ErrorIs(t, err, domain.ErrBundleNotFound)
}

func TestPublish_ReplacesPool(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	up, _ := upload(t, 3)
	first, err := r.Publish(ctx, "bob", up)
	require.NoError(t, err)

	b, err := r.Fetch(ctx, "bob")
	require.NoError(t, err)
	issued := b.OneTimePreKey.ID
	require.NoError(t, r.ConsumeOneTimePreKey(ctx, "bob", issued))

	// Republishing the same keys must not resurrect the consumed one.
	second, err := r.Publish(ctx, "bob", up)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, 2, r.Available("bob"))
	for i := 0; i < 2; i++ {
		b, err := r.Fetch(ctx, "bob")
		require.NoError(t, err)
		require.NotEqual(t, issued, b.OneTimePreKey.ID)
		require.Equal(t, second, b.BundleID)
	}

	fresh, _ := upload(t, 1)
	_, err = r.Publish(ctx, "bob", fresh)
	require.NoError(t, err)
	require.Equal(t, 1, r.Available("bob"))
}

func TestPublish_RejectsBadUploads(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	up, _ := upload(t, 1)

	bad := up
	bad.SignedPreKeySignature = append([]byte(nil), up.SignedPreKeySignature...)
	bad.SignedPreKeySignature[0] ^= 0xff
	_, err := r.Publish(ctx, "bob", bad)
	require.Error(t, err)

	_, err = r.Publish(ctx, "mallory", up)
	require.Error(t, err)

	dup := up
	dup.OneTimePreKeys = []domain.OneTimePreKeyPublic{up.OneTimePreKeys[0], up.OneTimePreKeys[0]}
	_, err = r.Publish(ctx, "bob", dup)
	require.Error(t, err)

	_, err = r.Fetch(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrBundleNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	up, _ := upload(t, 1)
	_, err := r.Publish(ctx, "bob", up)
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, "bob"))
	_, err = r.Fetch(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrBundleNotFound)
}
