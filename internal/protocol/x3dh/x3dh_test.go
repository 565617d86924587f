package x3dh_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/protocol/x3dh"
)

// makeIdentity creates a domain.Identity with fresh X25519 and Ed25519 pairs.
func makeIdentity(t *testing.T) domain.Identity {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return id
}

// responder holds Bob's private pre-keys next to his published bundle.
type responder struct {
	id     domain.Identity
	spk    domain.SignedPreKeyPair
	opk    *domain.OneTimePreKeyPair
	bundle domain.PreKeyBundle
}

func makeResponder(t *testing.T, withOPK bool) responder {
	t.Helper()
	bob := makeIdentity(t)
	spk, err := crypto.GenerateSignedPreKey(bob, "spk-test", time.Now())
	if err != nil {
		t.Fatalf("GenerateSignedPreKey: %v", err)
	}
	r := responder{
		id:  bob,
		spk: spk,
		bundle: domain.PreKeyBundle{
			BundleID:              "bundle-1",
			Device:                "bob",
			IdentityKey:           bob.XPub,
			SigningKey:            bob.EdPub,
			SignedPreKeyID:        spk.ID,
			SignedPreKey:          spk.Pub,
			SignedPreKeySignature: spk.Signature,
		},
	}
	if withOPK {
		opks, err := crypto.GenerateOneTimePreKeys(1)
		if err != nil {
			t.Fatalf("GenerateOneTimePreKeys: %v", err)
		}
		r.opk = &opks[0]
		pub := opks[0].Public()
		r.bundle.OneTimePreKey = &pub
	}
	return r
}

func TestInitiateAndRespond_NoOneTimePreKey(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeResponder(t, false)

	initRes, err := x3dh.Initiate(alice, bob.bundle)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if !initRes.NoOneTimePreKey {
		t.Fatal("want degraded flag without a one-time pre-key")
	}
	if initRes.Initial.OneTimePreKeyID != "" {
		t.Fatalf("want empty one-time pre-key id, got %q", initRes.Initial.OneTimePreKeyID)
	}
	if initRes.Initial.SignedPreKeyID != "spk-test" {
		t.Fatalf("want signed pre-key id spk-test, got %q", initRes.Initial.SignedPreKeyID)
	}
	if initRes.RemoteRatchetKey != bob.spk.Pub {
		t.Fatal("initiator's first remote ratchet key must be the signed pre-key")
	}

	respRes, err := x3dh.Respond(bob.id, bob.spk, nil, initRes.Initial)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !bytes.Equal(initRes.SharedSecret, respRes.SharedSecret) {
		t.Fatal("shared secrets differ (no OPK)")
	}
	if !bytes.Equal(initRes.AssociatedData, respRes.AssociatedData) {
		t.Fatal("associated data differs")
	}
	if !respRes.NoOneTimePreKey {
		t.Fatal("responder should also report the degraded flag")
	}
}

func TestInitiateAndRespond_WithOneTimePreKey(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeResponder(t, true)

	initRes, err := x3dh.Initiate(alice, bob.bundle)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if initRes.NoOneTimePreKey {
		t.Fatal("unexpected degraded flag")
	}
	if initRes.Initial.OneTimePreKeyID != bob.opk.ID {
		t.Fatalf("one-time id = %q, want %q", initRes.Initial.OneTimePreKeyID, bob.opk.ID)
	}

	respRes, err := x3dh.Respond(bob.id, bob.spk, bob.opk, initRes.Initial)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !bytes.Equal(initRes.SharedSecret, respRes.SharedSecret) {
		t.Fatal("shared secrets differ (with OPK)")
	}
	if len(initRes.SharedSecret) != x3dh.SharedSecretSize {
		t.Fatalf("secret is %d bytes", len(initRes.SharedSecret))
	}
}

func TestRespond_MissingOneTimePreKeyFailsClosed(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeResponder(t, true)

	initRes, err := x3dh.Initiate(alice, bob.bundle)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	// The one-time pre-key was already consumed by an earlier handshake.
	_, err = x3dh.Respond(bob.id, bob.spk, nil, initRes.Initial)
	if !errors.Is(err, domain.ErrHandshakeFailed) {
		t.Fatalf("want ErrHandshakeFailed, got %v", err)
	}

	other, err := crypto.GenerateOneTimePreKeys(1)
	if err != nil {
		t.Fatalf("GenerateOneTimePreKeys: %v", err)
	}
	_, err = x3dh.Respond(bob.id, bob.spk, &other[0], initRes.Initial)
	if !errors.Is(err, domain.ErrHandshakeFailed) {
		t.Fatalf("want ErrHandshakeFailed for mismatched id, got %v", err)
	}
}

func TestInitiate_BadSignature(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeResponder(t, false)
	mallory := makeIdentity(t)

	forged := bob.bundle
	forged.SignedPreKeySignature = crypto.Sign(mallory.EdPriv, bob.spk.Pub.Slice())
	if _, err := x3dh.Initiate(alice, forged); !errors.Is(err, domain.ErrHandshakeFailed) {
		t.Fatalf("want ErrHandshakeFailed for forged signature, got %v", err)
	}

	swapped := bob.bundle
	_, swapped.SignedPreKey, _ = crypto.GenerateX25519()
	if _, err := x3dh.Initiate(alice, swapped); !errors.Is(err, domain.ErrHandshakeFailed) {
		t.Fatalf("want ErrHandshakeFailed for substituted pre-key, got %v", err)
	}
}

func TestInitiate_MalformedBundle(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeResponder(t, false)

	mutations := map[string]func(b *domain.PreKeyBundle){
		"no identity":     func(b *domain.PreKeyBundle) { b.IdentityKey = domain.X25519Public{} },
		"no signing key":  func(b *domain.PreKeyBundle) { b.SigningKey = domain.Ed25519Public{} },
		"short signature": func(b *domain.PreKeyBundle) { b.SignedPreKeySignature = b.SignedPreKeySignature[:10] },
		"no spk id":       func(b *domain.PreKeyBundle) { b.SignedPreKeyID = "" },
		"empty opk": func(b *domain.PreKeyBundle) {
			b.OneTimePreKey = &domain.OneTimePreKeyPublic{ID: "opk-x"}
		},
	}
	for name, mutate := range mutations {
		b := bob.bundle
		b.SignedPreKeySignature = append([]byte(nil), bob.bundle.SignedPreKeySignature...)
		mutate(&b)
		if _, err := x3dh.Initiate(alice, b); !errors.Is(err, domain.ErrHandshakeFailed) {
			t.Fatalf("%s: want ErrHandshakeFailed, got %v", name, err)
		}
	}
}

func TestRespond_IdentitySubstitutionChangesAssociatedData(t *testing.T) {
	alice := makeIdentity(t)
	mallory := makeIdentity(t)
	bob := makeResponder(t, false)

	initRes, err := x3dh.Initiate(alice, bob.bundle)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	msg := initRes.Initial
	msg.IdentityKey = mallory.XPub
	respRes, err := x3dh.Respond(bob.id, bob.spk, nil, msg)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if bytes.Equal(initRes.SharedSecret, respRes.SharedSecret) {
		t.Fatal("substituted identity must not yield the same secret")
	}
	if bytes.Equal(initRes.AssociatedData, respRes.AssociatedData) {
		t.Fatal("substituted identity must not yield the same associated data")
	}
}
