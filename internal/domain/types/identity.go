package types

// Identity holds a device's long-term X25519 and Ed25519 keys.
//
// The X25519 pair takes part in X3DH; the Ed25519 pair signs the signed
// pre-key. The private halves never leave the device.
type Identity struct {
	XPub   X25519Public   `json:"xpub"`
	XPriv  X25519Private  `json:"xpriv"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// Public returns the shareable half of the identity.
func (id Identity) Public() IdentityPublic {
	return IdentityPublic{XPub: id.XPub, EdPub: id.EdPub}
}

// Wipe zeroes both private keys.
func (id *Identity) Wipe() {
	id.XPriv.Wipe()
	id.EdPriv.Wipe()
}

// IdentityPublic is the public half of an Identity.
type IdentityPublic struct {
	XPub  X25519Public  `json:"xpub"`
	EdPub Ed25519Public `json:"edpub"`
}
