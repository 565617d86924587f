// Package commands defines the unhidra CLI.
//
// Commands
//
//   - init            Create the local identity and config
//   - fingerprint     Print the identity fingerprint
//   - register        Generate pre-keys if needed and publish them
//   - rotate          Apply the pre-key rotation policy and republish
//   - start-session   Run the handshake against a peer's published bundle
//   - send            Encrypt and send a message
//   - recv            Fetch and decrypt queued messages
//   - sessions        Show or reset the session with a peer
//
// Settings come from <home>/unhidra.conf, a .env file and UNHIDRA_*
// environment variables; flags override all of them.
package commands
