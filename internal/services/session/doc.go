// Package session runs handshakes and moves messages through leased
// Double Ratchet sessions.
//
// Initiate turns a fetched pre-key bundle into a stored initiator session.
// Decrypt answers an envelope carrying an initial message by running the
// responder side of the handshake under the pair's lease; the one-time
// pre-key is consumed only after the first message authenticates, and a
// handshake naming a consumed key fails closed. A later handshake from the
// same peer with a different ephemeral key supersedes the stored session
// once its first message decrypts.
package session
