package types

// SignedPreKeyPair is the full signed pre-key kept by its owner.
type SignedPreKeyPair struct {
	ID         SignedPreKeyID `json:"id"`
	Priv       X25519Private  `json:"priv"`
	Pub        X25519Public   `json:"pub"`
	Signature  []byte         `json:"signature"`
	CreatedUTC int64          `json:"created_utc"`
}

// Wipe zeroes the private half.
func (p *SignedPreKeyPair) Wipe() { p.Priv.Wipe() }

// OneTimePreKeyPair is the full (private+public) one-time pre-key stored locally.
type OneTimePreKeyPair struct {
	ID   OneTimePreKeyID `json:"id"`
	Priv X25519Private   `json:"priv"`
	Pub  X25519Public    `json:"pub"`
}

// Wipe zeroes the private half.
func (p *OneTimePreKeyPair) Wipe() { p.Priv.Wipe() }

// Public returns the publishable half.
func (p OneTimePreKeyPair) Public() OneTimePreKeyPublic {
	return OneTimePreKeyPublic{ID: p.ID, Pub: p.Pub}
}

// OneTimePreKeyPublic is only the public half (sent in bundles).
type OneTimePreKeyPublic struct {
	ID  OneTimePreKeyID `json:"id"`
	Pub X25519Public    `json:"pub"`
}

// PreKeyUpload is what a device publishes to the registry: its identity,
// the current signed pre-key and a pool of one-time pre-keys.
type PreKeyUpload struct {
	Device                DeviceID              `json:"device"`
	IdentityKey           X25519Public          `json:"identity_key"`
	SigningKey            Ed25519Public         `json:"signing_key"`
	SignedPreKeyID        SignedPreKeyID        `json:"signed_pre_key_id"`
	SignedPreKey          X25519Public          `json:"signed_pre_key"`
	SignedPreKeySignature []byte                `json:"signed_pre_key_signature"`
	OneTimePreKeys        []OneTimePreKeyPublic `json:"one_time_pre_keys,omitempty"`
}

// PreKeyBundle is what an initiator fetches. It is immutable once handed
// out and carries at most one one-time pre-key.
type PreKeyBundle struct {
	BundleID              BundleID             `json:"bundle_id"`
	Device                DeviceID             `json:"device"`
	IdentityKey           X25519Public         `json:"identity_key"`
	SigningKey            Ed25519Public        `json:"signing_key"`
	SignedPreKeyID        SignedPreKeyID       `json:"signed_pre_key_id"`
	SignedPreKey          X25519Public         `json:"signed_pre_key"`
	SignedPreKeySignature []byte               `json:"signed_pre_key_signature"`
	OneTimePreKey         *OneTimePreKeyPublic `json:"one_time_pre_key,omitempty"`
}

// InitialMessage carries the X3DH parameters the responder needs. The
// initiator attaches it to every envelope until the first reply arrives.
type InitialMessage struct {
	IdentityKey     X25519Public    `json:"identity_key"`
	SigningKey      Ed25519Public   `json:"signing_key"`
	EphemeralKey    X25519Public    `json:"ephemeral_key"`
	SignedPreKeyID  SignedPreKeyID  `json:"signed_pre_key_id"`
	OneTimePreKeyID OneTimePreKeyID `json:"one_time_pre_key_id,omitempty"`
}

// MaintenanceReport summarises one pre-key maintenance pass.
type MaintenanceReport struct {
	Rotated     bool             `json:"rotated"`
	Retired     []SignedPreKeyID `json:"retired,omitempty"`
	Replenished int              `json:"replenished"`
}
