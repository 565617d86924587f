package prekey_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/registry"
	"unhidra/internal/services/prekey"
	"unhidra/internal/store"
	"unhidra/internal/testutils"
)

func newService(t *testing.T, reg domain.PreKeyRegistry) (*prekey.Service, *store.PreKeyFileStore) {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	pks := store.NewPreKeyFileStore(t.TempDir())
	policy := prekey.DefaultPolicy()
	policy.OneTimeBatch = 5
	policy.LowWatermark = 2
	svc := prekey.New(prekey.Config{
		Local:    "bob",
		Identity: id,
		PreKeys:  pks,
		Registry: reg,
		Policy:   policy,
		Log:      testutils.TestLoggerSys(t, "PREK"),
	})
	t.Cleanup(svc.Close)
	return svc, pks
}

func TestGenerateAndStore(t *testing.T) {
	svc, pks := newService(t, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	spk, err := svc.GenerateAndStore(now, 4)
	require.NoError(t, err)
	require.Equal(t, now.Unix(), spk.CreatedUTC)

	cur, ok, err := pks.CurrentSignedPreKeyID()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, spk.ID, cur)

	pool, err := pks.ListOneTimePreKeyPublics()
	require.NoError(t, err)
	require.Len(t, pool, 4)

	up, err := svc.Upload()
	require.NoError(t, err)
	require.True(t, crypto.Verify(up.SigningKey, up.SignedPreKey.Slice(), up.SignedPreKeySignature))
	require.Len(t, up.OneTimePreKeys, 4)
}

func TestMaintain_RotateRetireReplenish(t *testing.T) {
	ctx := context.Background()
	svc, pks := newService(t, nil)
	day := 24 * time.Hour
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Nothing stored yet: the first run creates a signed pre-key and a pool.
	report, err := svc.Maintain(ctx, t0)
	require.NoError(t, err)
	require.True(t, report.Rotated)
	require.Equal(t, 5, report.Replenished)
	first, _, err := pks.CurrentSignedPreKeyID()
	require.NoError(t, err)

	report, err = svc.Maintain(ctx, t0.Add(6*day))
	require.NoError(t, err)
	require.False(t, report.Rotated)
	require.Empty(t, report.Retired)
	require.Zero(t, report.Replenished)

	// A week on the key is replaced but the old one is retained.
	report, err = svc.Maintain(ctx, t0.Add(7*day))
	require.NoError(t, err)
	require.True(t, report.Rotated)
	require.Empty(t, report.Retired)
	second, _, err := pks.CurrentSignedPreKeyID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	_, ok, err := pks.LoadSignedPreKey(first)
	require.NoError(t, err)
	require.True(t, ok, "replaced key still answers handshakes")

	// Thirty days after it was replaced the old key goes.
	report, err = svc.Maintain(ctx, t0.Add(37*day))
	require.NoError(t, err)
	require.Contains(t, report.Retired, first)
	_, ok, err = pks.LoadSignedPreKey(first)
	require.NoError(t, err)
	require.False(t, ok)

	// Drain the pool below the watermark.
	pool, err := pks.ListOneTimePreKeyPublics()
	require.NoError(t, err)
	for _, p := range pool[:4] {
		_, _, err := pks.ConsumeOneTimePreKey(p.ID)
		require.NoError(t, err)
	}
	report, err = svc.Maintain(ctx, t0.Add(37*day))
	require.NoError(t, err)
	require.Equal(t, 4, report.Replenished)
	pool, err = pks.ListOneTimePreKeyPublics()
	require.NoError(t, err)
	require.Len(t, pool, 5)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	svc, _ := newService(t, reg)

	_, err := svc.Publish(ctx)
	require.Error(t, err, "nothing generated yet")

	_, err = svc.GenerateAndStore(time.Now(), 3)
	require.NoError(t, err)
	id, err := svc.Publish(ctx)
	require.NoError(t, err)

	b, err := reg.Fetch(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, id, b.BundleID)
	require.NotNil(t, b.OneTimePreKey)
	require.Equal(t, 2, reg.Available("bob"))
}
