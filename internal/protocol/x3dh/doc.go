// Package x3dh implements the X3DH key-agreement used to bootstrap a Double Ratchet
// session between two devices.
//
// # Overview
//
// X3DH lets an initiator derive a shared 32-byte secret with a responder who has
// published a pre-key bundle. The bundle contains:
//   - Identity key (X25519) and signing key (Ed25519)
//   - Signed pre-key (X25519) and its Ed25519 signature
//   - At most one one-time pre-key (X25519)
//
// # Flows
//
// Initiator (Initiate):
//  1. Validate the bundle shape and verify the signed pre-key signature.
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]).
//  4. HKDF over 0xFF*32 and the concatenated DH outputs to produce the secret.
//  5. Return the secret, the associated data and the InitialMessage.
//
// Responder (Respond):
//  1. Receive the InitialMessage (initiator keys, ephemeral EK, SPK id[, OPK id]).
//  2. The caller looks up the SPK and the OPK it names.
//  3. Compute the symmetric DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa]).
//  4. HKDF the same transcript to the identical secret.
//
// # Errors
//
// Every failure wraps domain.ErrHandshakeFailed: malformed bundles, a bad
// signature, low-order keys and a missing or mismatched one-time pre-key.
//
// # Security notes
//
// A bundle without a one-time pre-key still completes; the Result is marked
// NoOneTimePreKey. Consuming the one-time pre-key after use is the caller's
// job, since only the caller knows when the first message authenticated.
package x3dh
