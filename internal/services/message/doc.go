// Package message sends and receives encrypted messages through a mailbox.
//
// Outbound plaintext is sealed by the session service, encoded with the
// envelope codec and queued for the peer. Inbound deliveries are decoded
// and decrypted in order; only the processed prefix of the queue is
// acknowledged, so a transient failure leaves the rest for the next fetch.
package message
