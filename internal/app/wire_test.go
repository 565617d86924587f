package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"unhidra/internal/registry"
	"unhidra/internal/relay"
)

const testPassphrase = "Correct-Horse-9"

func newTestWire(t *testing.T, url string, device string) *Wire {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Home = t.TempDir()
	cfg.Device = device
	cfg.Relay.URL = url
	cfg.Storage.Backend = "sqlite"
	logs, err := NewLogBackend("", "off", nil)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWire(cfg, logs, nil)
	if _, _, err := w.Identity.GenerateIdentity(testPassphrase); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWire_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv, err := relay.NewServer(relay.ServerConfig{
		Registry: registry.NewMemoryRegistry(),
		Mailbox:  relay.NewMemoryMailbox(),
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	aliceW := newTestWire(t, ts.URL, "alice")
	bobW := newTestWire(t, ts.URL, "bob")

	if _, err := aliceW.Unlock(ctx, "Wrong-Horse-9!"); err == nil {
		t.Fatal("unlocked with the wrong passphrase")
	}

	alice, err := aliceW.Unlock(ctx, testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	defer alice.Close()
	bob, err := bobW.Unlock(ctx, testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	defer bob.Close()

	if _, err := bob.PreKeys.Maintain(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.PreKeys.Publish(ctx); err != nil {
		t.Fatal(err)
	}
	if err := alice.Sessions.Connect(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := alice.Messages.SendMessage(ctx, "bob", []byte("over the wire")); err != nil {
		t.Fatal(err)
	}
	msgs, err := bob.Messages.ReceiveMessages(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || string(msgs[0].Plaintext) != "over the wire" {
		t.Fatalf("received %+v", msgs)
	}
}
