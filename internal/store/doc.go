// Package store provides persistence for unhidra's local data.
//
// SessionStore maps (local device, peer device) pairs to Double Ratchet
// states. Every read-modify-write of a pair goes through an exclusive
// Lease; a second caller waits up to a timeout and then gets
// domain.ErrLeaseContention. Different pairs proceed in parallel. States
// are serialized with a version byte and deterministic CBOR.
//
// The durability layer is the domain.SessionStorage contract with these
// implementations:
//   - MemoryStorage, for tests
//   - FileStorage, one fsynced file per pair under a locked directory
//   - SQLiteStorage, a WAL-mode SQLite table
//   - LevelDBStorage, synced LevelDB writes
//
// SealedStorage wraps any of them to encrypt records at rest.
//
// The package also holds the passphrase-sealed identity keystore
// (IdentityFileStore) and the pre-key pair store (PreKeyFileStore).
package store
