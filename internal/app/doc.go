// Package app wires application dependencies for the CLI and the relay.
//
// It loads Config from TOML, .env and the environment, builds the slog
// backend with optional log rotation, and assembles stores, relay clients
// and services. Wire holds what is usable before the passphrase is known;
// Unlock decrypts the identity and returns the session-capable graph.
package app
