package relay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/registry"
	"unhidra/internal/relay"
	"unhidra/internal/testutils"
)

func newRelay(t *testing.T) (*relay.Server, *relay.Client) {
	t.Helper()
	relay.UseLogger(testutils.TestLoggerSys(t, "RCLI"))
	srv, err := relay.NewServer(relay.ServerConfig{
		Registry: registry.NewMemoryRegistry(),
		Mailbox:  relay.NewMemoryMailbox(),
		Log:      testutils.TestLoggerSys(t, "RELY"),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c := relay.NewClient(ts.URL)
	c.HTTP = ts.Client()
	return srv, c
}

func testUpload(t *testing.T, device domain.DeviceID, opks int) domain.PreKeyUpload {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	spk, err := crypto.GenerateSignedPreKey(id, "spk-1", time.Now())
	require.NoError(t, err)
	pairs, err := crypto.GenerateOneTimePreKeys(opks)
	require.NoError(t, err)
	up := domain.PreKeyUpload{
		Device:                device,
		IdentityKey:           id.XPub,
		SigningKey:            id.EdPub,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.Pub,
		SignedPreKeySignature: spk.Signature,
	}
	for _, p := range pairs {
		up.OneTimePreKeys = append(up.OneTimePreKeys, p.Public())
	}
	return up
}

func TestRegistryOverHTTP(t *testing.T) {
	ctx := context.Background()
	_, c := newRelay(t)
	reg := c.Registry()

	_, err := reg.Fetch(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrBundleNotFound)

	up := testUpload(t, "bob", 1)
	bundleID, err := reg.Publish(ctx, "bob", up)
	require.NoError(t, err)
	require.NotEmpty(t, bundleID)

	b, err := reg.Fetch(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, bundleID, b.BundleID)
	require.Equal(t, up.IdentityKey, b.IdentityKey)
	require.Equal(t, up.SignedPreKeySignature, b.SignedPreKeySignature)
	require.NotNil(t, b.OneTimePreKey)
	require.Equal(t, up.OneTimePreKeys[0], *b.OneTimePreKey)

	require.NoError(t, reg.ConsumeOneTimePreKey(ctx, "bob", b.OneTimePreKey.ID))
	err = reg.ConsumeOneTimePreKey(ctx, "bob", b.OneTimePreKey.ID)
	require.ErrorIs(t, err, domain.ErrPreKeyConsumed)

	b, err = reg.Fetch(ctx, "bob")
	require.NoError(t, err)
	require.Nil(t, b.OneTimePreKey)
}

func TestRegistryOverHTTP_RejectsBadUpload(t *testing.T) {
	_, c := newRelay(t)
	up := testUpload(t, "bob", 0)
	up.SignedPreKeySignature = nil
	_, err := c.Registry().Publish(context.Background(), "bob", up)
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestMailboxOverHTTP(t *testing.T) {
	ctx := context.Background()
	_, c := newRelay(t)
	mb := c.Mailbox()

	for _, p := range []string{"one", "two", "three"} {
		require.NoError(t, mb.Send(ctx, domain.Delivery{From: "alice", To: "bob", Payload: []byte(p)}))
	}
	got, err := mb.Fetch(ctx, "bob", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "one", string(got[0].Payload))
	require.Equal(t, domain.DeviceID("alice"), got[0].From)
	require.NotZero(t, got[0].Timestamp)

	// Nothing is dropped until acked.
	again, err := mb.Fetch(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, again, 3)

	require.NoError(t, mb.Ack(ctx, "bob", 2))
	rest, err := mb.Fetch(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "three", string(rest[0].Payload))

	require.Error(t, mb.Ack(ctx, "bob", 5))

	empty, err := mb.Fetch(ctx, "carol", 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestMailbox_RequiresSender(t *testing.T) {
	_, c := newRelay(t)
	err := c.Mailbox().Send(context.Background(), domain.Delivery{To: "bob", Payload: []byte("x")})
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	srv, c := newRelay(t)
	_, err := c.Registry().Publish(ctx, "bob", testUpload(t, "bob", 0))
	require.NoError(t, err)
	_, err = c.Registry().Fetch(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, c.Mailbox().Send(ctx, domain.Delivery{From: "alice", To: "bob", Payload: []byte("x")}))

	rec := httptest.NewRecorder()
	srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	for _, want := range []string{
		"relay_bundles_published_total 1",
		"relay_bundles_fetched_total 1",
		"relay_bundles_fetched_without_opk_total 1",
		"relay_mailbox_depth 1",
		`relay_requests_total{code="200",route="fetch"} 1`,
	} {
		require.True(t, strings.Contains(text, want), "metrics missing %q", want)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv, err := relay.NewServer(relay.ServerConfig{
		Registry: registry.NewMemoryRegistry(),
		Mailbox:  relay.NewMemoryMailbox(),
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0", "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
