package x3dh

import (
	"errors"
	"fmt"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

const (
	// SharedSecretSize is the length of the derived secret.
	SharedSecretSize = 32

	kdfInfo = "unhidra/x3dh/v1"
)

// Result is what a completed handshake hands to the ratchet.
type Result struct {
	SharedSecret []byte
	// AssociatedData binds both identities: initiator X25519 || initiator
	// Ed25519 || responder X25519 || responder Ed25519.
	AssociatedData []byte
	// Initial is the message the responder needs to recompute the secret.
	Initial domain.InitialMessage
	// RemoteRatchetKey is the responder's signed pre-key, used by the
	// initiator as the first remote ratchet key. Zero on the responder.
	RemoteRatchetKey domain.X25519Public
	// NoOneTimePreKey marks a three-DH handshake.
	NoOneTimePreKey bool
}

// Wipe zeroes the shared secret.
func (r *Result) Wipe() { crypto.Wipe(r.SharedSecret) }

// Initiate verifies the bundle and derives the shared secret as the
// initiator. The bundle fetch is the caller's business.
func Initiate(local domain.Identity, bundle domain.PreKeyBundle) (Result, error) {
	if err := validateBundle(bundle); err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	if !crypto.Verify(bundle.SigningKey, bundle.SignedPreKey.Slice(), bundle.SignedPreKeySignature) {
		return Result{}, fmt.Errorf("%w: signed pre-key signature does not verify", domain.ErrHandshakeFailed)
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return Result{}, err
	}
	defer ephPriv.Wipe()

	var opk *domain.X25519Public
	if bundle.OneTimePreKey != nil {
		opk = &bundle.OneTimePreKey.Pub
	}

	dh1, err := crypto.DH(local.XPriv, bundle.SignedPreKey) // DH(IKA, SPKB)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	dh2, err := crypto.DH(ephPriv, bundle.IdentityKey) // DH(EKA, IKB)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	dh3, err := crypto.DH(ephPriv, bundle.SignedPreKey) // DH(EKA, SPKB)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	dhs := [][32]byte{dh1, dh2, dh3}
	if opk != nil {
		dh4, err := crypto.DH(ephPriv, *opk) // DH(EKA, OPKB)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
		}
		dhs = append(dhs, dh4)
	}

	secret, err := deriveSecret(dhs)
	if err != nil {
		return Result{}, err
	}

	msg := domain.InitialMessage{
		IdentityKey:    local.XPub,
		SigningKey:     local.EdPub,
		EphemeralKey:   ephPub,
		SignedPreKeyID: bundle.SignedPreKeyID,
	}
	if opk != nil {
		msg.OneTimePreKeyID = bundle.OneTimePreKey.ID
	}
	remote := domain.IdentityPublic{XPub: bundle.IdentityKey, EdPub: bundle.SigningKey}

	return Result{
		SharedSecret:     secret,
		AssociatedData:   associatedData(local.Public(), remote),
		Initial:          msg,
		RemoteRatchetKey: bundle.SignedPreKey,
		NoOneTimePreKey:  opk == nil,
	}, nil
}

// Respond recomputes the shared secret as the responder from the
// initiator's message and the local pre-keys it names. opk must be supplied
// exactly when the message names a one-time pre-key.
func Respond(
	local domain.Identity,
	spk domain.SignedPreKeyPair,
	opk *domain.OneTimePreKeyPair,
	msg domain.InitialMessage,
) (Result, error) {
	if err := validateInitial(msg); err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	if msg.SignedPreKeyID != spk.ID {
		return Result{}, fmt.Errorf("%w: signed pre-key %q does not match %q",
			domain.ErrHandshakeFailed, spk.ID, msg.SignedPreKeyID)
	}
	if msg.OneTimePreKeyID == "" {
		opk = nil
	} else if opk == nil || opk.ID != msg.OneTimePreKeyID {
		return Result{}, fmt.Errorf("%w: one-time pre-key %q unavailable",
			domain.ErrHandshakeFailed, msg.OneTimePreKeyID)
	}

	dh1, err := crypto.DH(spk.Priv, msg.IdentityKey) // DH(SPKB, IKA)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	dh2, err := crypto.DH(local.XPriv, msg.EphemeralKey) // DH(IKB, EKA)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	dh3, err := crypto.DH(spk.Priv, msg.EphemeralKey) // DH(SPKB, EKA)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
	}
	dhs := [][32]byte{dh1, dh2, dh3}
	if opk != nil {
		dh4, err := crypto.DH(opk.Priv, msg.EphemeralKey) // DH(OPKB, EKA)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrHandshakeFailed, err)
		}
		dhs = append(dhs, dh4)
	}

	secret, err := deriveSecret(dhs)
	if err != nil {
		return Result{}, err
	}
	remote := domain.IdentityPublic{XPub: msg.IdentityKey, EdPub: msg.SigningKey}

	return Result{
		SharedSecret:    secret,
		AssociatedData:  associatedData(remote, local.Public()),
		Initial:         msg,
		NoOneTimePreKey: opk == nil,
	}, nil
}

// deriveSecret runs HKDF over F || DH1 || DH2 || DH3 [|| DH4], where F is
// 32 0xFF bytes, and wipes the inputs.
func deriveSecret(dhs [][32]byte) ([]byte, error) {
	ikm := make([]byte, 32, 32*(len(dhs)+1))
	for i := range ikm {
		ikm[i] = 0xFF
	}
	for i := range dhs {
		ikm = append(ikm, dhs[i][:]...)
		dhs[i] = [32]byte{}
	}
	defer crypto.Wipe(ikm)

	secret, err := crypto.HKDF(ikm, nil, kdfInfo, SharedSecretSize)
	if err != nil {
		return nil, fmt.Errorf("x3dh kdf: %w", err)
	}
	return secret, nil
}

func associatedData(initiator, responder domain.IdentityPublic) []byte {
	ad := make([]byte, 0, 128)
	ad = append(ad, initiator.XPub[:]...)
	ad = append(ad, initiator.EdPub[:]...)
	ad = append(ad, responder.XPub[:]...)
	ad = append(ad, responder.EdPub[:]...)
	return ad
}

func validateBundle(b domain.PreKeyBundle) error {
	switch {
	case b.IdentityKey.IsZero():
		return errors.New("bundle has no identity key")
	case b.SigningKey.IsZero():
		return errors.New("bundle has no signing key")
	case b.SignedPreKey.IsZero():
		return errors.New("bundle has no signed pre-key")
	case b.SignedPreKeyID == "":
		return errors.New("bundle has no signed pre-key id")
	case len(b.SignedPreKeySignature) != 64:
		return fmt.Errorf("signed pre-key signature is %d bytes", len(b.SignedPreKeySignature))
	}
	if b.OneTimePreKey != nil && (b.OneTimePreKey.ID == "" || b.OneTimePreKey.Pub.IsZero()) {
		return errors.New("bundle has a malformed one-time pre-key")
	}
	return nil
}

func validateInitial(m domain.InitialMessage) error {
	switch {
	case m.IdentityKey.IsZero():
		return errors.New("initial message has no identity key")
	case m.SigningKey.IsZero():
		return errors.New("initial message has no signing key")
	case m.EphemeralKey.IsZero():
		return errors.New("initial message has no ephemeral key")
	case m.SignedPreKeyID == "":
		return errors.New("initial message names no signed pre-key")
	}
	return nil
}
