package types

// DeviceID is the stable user/device identity string supplied by the
// authentication layer. Sessions are scoped by an ordered pair of DeviceIDs.
type DeviceID string

// String returns the string form of the device id.
func (d DeviceID) String() string { return string(d) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// SignedPreKeyID uniquely identifies a signed pre-key.
type SignedPreKeyID string

// String returns the string form of the identifier.
func (id SignedPreKeyID) String() string { return string(id) }

// OneTimePreKeyID uniquely identifies a one-time pre-key.
type OneTimePreKeyID string

// String returns the string form of the identifier.
func (id OneTimePreKeyID) String() string { return string(id) }

// BundleID identifies one published pre-key bundle.
type BundleID string

// String returns the string form of the bundle identifier.
func (id BundleID) String() string { return string(id) }
