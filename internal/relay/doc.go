// Package relay is the development relay: a JSON HTTP front for a
// pre-key registry and a store-and-forward mailbox.
//
// Server hosts any domain.PreKeyRegistry and domain.Mailbox and exports
// Prometheus metrics. Client is the matching HTTP client; its Registry and
// Mailbox views implement the same domain contracts, so services cannot
// tell a remote relay from an in-process one. Error bodies carry a code
// which the client maps back to domain.ErrBundleNotFound and
// domain.ErrPreKeyConsumed.
//
// Envelopes cross the relay as opaque payloads. The relay never sees
// plaintext or session state.
package relay
