package interfaces

import (
	"context"
	"time"

	domaintypes "unhidra/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// PreKeyService generates, rotates and publishes your pre-keys.
type PreKeyService interface {
	GenerateAndStore(now time.Time, oneTime int) (domaintypes.SignedPreKeyPair, error)
	Maintain(ctx context.Context, now time.Time) (domaintypes.MaintenanceReport, error)
	Publish(ctx context.Context) (domaintypes.BundleID, error)
}

// SessionService runs handshakes and encrypts/decrypts through leased
// sessions.
type SessionService interface {
	Initiate(ctx context.Context, peer domaintypes.DeviceID, bundle domaintypes.PreKeyBundle) error
	Encrypt(ctx context.Context, peer domaintypes.DeviceID, plaintext []byte) (domaintypes.Envelope, error)
	Decrypt(ctx context.Context, peer domaintypes.DeviceID, envelope domaintypes.Envelope) ([]byte, error)
	Phase(ctx context.Context, peer domaintypes.DeviceID) (domaintypes.SessionPhase, error)
	Reset(ctx context.Context, peer domaintypes.DeviceID) error
}

// MessageService encrypts, sends, fetches and decrypts messages.
type MessageService interface {
	SendMessage(ctx context.Context, to domaintypes.DeviceID, plaintext []byte) error
	ReceiveMessages(ctx context.Context, limit int) ([]domaintypes.DecryptedMessage, error)
}
