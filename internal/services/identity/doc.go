// Package identity manages creation, sealing and loading of the local
// identity.
//
// It enforces the passphrase policy, refuses to overwrite an existing
// identity unless asked to, and reports fingerprints for out-of-band
// verification.
package identity
