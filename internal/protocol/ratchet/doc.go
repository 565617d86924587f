// Package ratchet implements the Double Ratchet over a completed X3DH
// handshake.
//
// A state holds a root key, a sending and a receiving KDF chain, the local
// ratchet key pair and the last remote ratchet key. Every message advances
// a symmetric chain; every new remote ratchet key triggers a DH step that
// reseeds both chains from the root.
//
// Message keys derived ahead of use (out-of-order delivery) sit in a
// bounded ring on the state. When the ring is full the oldest key is
// evicted and its id is remembered, so a late message for it fails with
// domain.ErrCacheExhausted rather than domain.ErrReplayDetected.
//
// The last Config.RetiredKeyLimit remote ratchet keys are remembered too.
// A replay from one of those epochs fails with domain.ErrReplayDetected; a
// replay from an older epoch is treated as a new ratchet step and fails
// with domain.ErrAuthenticationFailed. Either way the state is unchanged.
//
// Encrypt and Decrypt work on a private copy of the state and only replace
// the caller's state when they succeed. A tampered, replayed or
// out-of-range envelope therefore never moves a counter.
//
// Concurrency: a RatchetState is NOT safe for concurrent use. The session
// store serialises access per (local, peer) pair.
package ratchet
