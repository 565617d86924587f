// Package crypto exposes the key material and primitives used by the E2EE core.
//
// Contents
//
//   - Key material lifecycle (GenerateIdentity, GenerateSignedPreKey,
//     GenerateOneTimePreKeys, Sign, Verify)
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - HKDF-SHA256 and HMAC-SHA256 helpers (HKDF, HMAC)
//   - Passphrase key-encryption keys and sealed blobs (DeriveKEK, Seal, Open)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on Wipe when practical to reduce lifetime in memory.
// Verification helpers never panic on malformed input; they return false.
package crypto
