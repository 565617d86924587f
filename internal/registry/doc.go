// Package registry holds the in-memory pre-key bundle registry.
//
// A device publishes a PreKeyUpload: its identity keys, the current signed
// pre-key and a batch of one-time pre-key publics. Fetch hands out a bundle
// with at most one one-time pre-key, moving it from the available pool to
// the issued set so no two initiators receive the same key. The responder
// consumes the key once its first message authenticates; a second consume
// of the same id returns domain.ErrPreKeyConsumed.
package registry
