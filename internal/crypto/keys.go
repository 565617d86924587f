package crypto

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"unhidra/internal/domain"
)

// GenerateIdentity creates a device identity: an X25519 pair for key
// agreement and an Ed25519 pair for signing pre-keys.
func GenerateIdentity() (domain.Identity, error) {
	xPriv, xPub, err := GenerateX25519()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate identity dh key: %w", err)
	}
	edPriv, edPub, err := GenerateEd25519()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate identity signing key: %w", err)
	}
	return domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv}, nil
}

// GenerateSignedPreKey creates a signed pre-key whose public half is signed
// by the identity's signing key.
func GenerateSignedPreKey(
	id domain.Identity,
	keyID domain.SignedPreKeyID,
	now time.Time,
) (domain.SignedPreKeyPair, error) {
	priv, pub, err := GenerateX25519()
	if err != nil {
		return domain.SignedPreKeyPair{}, fmt.Errorf("generate signed pre-key: %w", err)
	}
	return domain.SignedPreKeyPair{
		ID:         keyID,
		Priv:       priv,
		Pub:        pub,
		Signature:  Sign(id.EdPriv, pub.Slice()),
		CreatedUTC: now.UTC().Unix(),
	}, nil
}

// GenerateOneTimePreKeys creates n one-time pre-keys with random ids.
func GenerateOneTimePreKeys(n int) ([]domain.OneTimePreKeyPair, error) {
	out := make([]domain.OneTimePreKeyPair, 0, n)
	for i := 0; i < n; i++ {
		priv, pub, err := GenerateX25519()
		if err != nil {
			for j := range out {
				out[j].Wipe()
			}
			return nil, fmt.Errorf("generate one-time pre-key: %w", err)
		}
		out = append(out, domain.OneTimePreKeyPair{
			ID:   domain.OneTimePreKeyID("opk-" + uuid.NewString()),
			Priv: priv,
			Pub:  pub,
		})
	}
	return out, nil
}

// Sign signs data with the identity signing key.
func Sign(priv domain.Ed25519Private, data []byte) []byte {
	return SignEd25519(priv, data)
}

// Verify checks sig over data. It fails closed on a wrong signature, a
// malformed signature or a zero key.
func Verify(pub domain.Ed25519Public, data, sig []byte) bool {
	return VerifyEd25519(pub, data, sig)
}
