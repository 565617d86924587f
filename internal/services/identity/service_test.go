package identity_test

import (
	"testing"

	"unhidra/internal/domain"
	"unhidra/internal/services/identity"
)

// memStore keeps the identity in memory and ignores the passphrase.
type memStore struct {
	id    *domain.Identity
	saves int
}

func (m *memStore) SaveIdentity(_ string, id domain.Identity) error {
	m.id = &id
	m.saves++
	return nil
}

func (m *memStore) LoadIdentity(string) (domain.Identity, error) { return *m.id, nil }

func (m *memStore) Exists() bool { return m.id != nil }

const strong = "Correct-Horse-9"

func TestGenerateIdentity_WeakPassphrase(t *testing.T) {
	svc := identity.New(&memStore{})
	for _, p := range []string{"", "short1!A", "alllowercase-123", "ALLUPPER-12345", "NoDigitsHere!!", "NoSymbols12345"} {
		if _, _, err := svc.GenerateIdentity(p); err != identity.ErrWeakPassphrase {
			t.Fatalf("passphrase %q: got %v, want ErrWeakPassphrase", p, err)
		}
	}
}

func TestGenerateIdentity_Fingerprint(t *testing.T) {
	st := &memStore{}
	svc := identity.New(st)
	id, fp, err := svc.GenerateIdentity(strong)
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if id.XPub.IsZero() || id.EdPub.IsZero() {
		t.Fatal("generated identity has zero public keys")
	}
	got, err := svc.FingerprintIdentity(strong)
	if err != nil {
		t.Fatalf("FingerprintIdentity: %v", err)
	}
	if got != fp {
		t.Fatalf("fingerprint changed: %q vs %q", got, fp)
	}
}

func TestGenerateIdentity_RefusesOverwrite(t *testing.T) {
	st := &memStore{}
	svc := identity.New(st)
	if _, _, err := svc.GenerateIdentity(strong); err != nil {
		t.Fatalf("first GenerateIdentity: %v", err)
	}
	if _, _, err := svc.GenerateIdentity(strong); err != identity.ErrIdentityExists {
		t.Fatalf("second GenerateIdentity: got %v, want ErrIdentityExists", err)
	}
	svc.Overwrite = true
	if _, _, err := svc.GenerateIdentity(strong); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if st.saves != 2 {
		t.Fatalf("saves = %d, want 2", st.saves)
	}
}
