package interfaces

import (
	"context"

	domaintypes "unhidra/internal/domain/types"
)

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}

// PreKeyStore manages the private halves of signed and one-time pre-keys.
type PreKeyStore interface {
	// Signed pre-keys
	SaveSignedPreKey(pair domaintypes.SignedPreKeyPair) error
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKeyPair, bool, error)
	ListSignedPreKeys() ([]domaintypes.SignedPreKeyPair, error)
	DeleteSignedPreKey(id domaintypes.SignedPreKeyID) error

	// Current signed pre-key selection
	SetCurrentSignedPreKeyID(id domaintypes.SignedPreKeyID) error
	CurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)

	// One-time pre-keys. LoadOneTimePreKey does not remove the key;
	// ConsumeOneTimePreKey removes it atomically and reports ok=false if it
	// was already gone.
	SaveOneTimePreKeys(pairs []domaintypes.OneTimePreKeyPair) error
	LoadOneTimePreKey(id domaintypes.OneTimePreKeyID) (domaintypes.OneTimePreKeyPair, bool, error)
	ConsumeOneTimePreKey(id domaintypes.OneTimePreKeyID) (domaintypes.OneTimePreKeyPair, bool, error)
	ListOneTimePreKeyPublics() ([]domaintypes.OneTimePreKeyPublic, error)

	// Accepted handshakes, keyed by the initiator's ephemeral key and
	// the signed pre-key they used. RecordHandshake reports ok=false if
	// the ephemeral was already recorded. The log of a signed pre-key is
	// dropped with it.
	HandshakeSeen(spk domaintypes.SignedPreKeyID, ephemeral domaintypes.X25519Public) (bool, error)
	RecordHandshake(spk domaintypes.SignedPreKeyID, ephemeral domaintypes.X25519Public) (bool, error)
}

// SessionStorage is the durability contract behind the session store.
// Save must be durable when it returns. Load returns ok=false for an absent
// pair. The serialized state is opaque to implementations.
type SessionStorage interface {
	Save(ctx context.Context, local, peer domaintypes.DeviceID, state []byte) error
	Load(ctx context.Context, local, peer domaintypes.DeviceID) ([]byte, bool, error)
	Delete(ctx context.Context, local, peer domaintypes.DeviceID) error
}
