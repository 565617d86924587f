// Command relay runs the in-memory development relay for unhidra. It
// stores published pre-key bundles, hands out one-time pre-keys at most
// once and queues opaque deliveries until the recipient acknowledges
// them.
//
// HTTP API
//
//	POST /v1/bundles/{device}
//	    Publish a signed pre-key upload. The pool of one-time pre-keys is
//	    replaced; keys already handed out or consumed never come back.
//
//	GET /v1/bundles/{device}
//	    Return the current bundle with at most one one-time pre-key, which
//	    is then no longer offered to anyone else.
//
//	POST /v1/bundles/{device}/consume { "id": ... }
//	    Mark a one-time pre-key as used. A second consume of the same id
//	    fails with code prekey_consumed.
//
//	POST /v1/messages/{device}
//	    Queue a delivery for {device}. A zero timestamp is filled in.
//
//	GET /v1/messages/{device}?limit=N
//	    List up to N queued deliveries without removing them.
//
//	POST /v1/messages/{device}/ack { "count": N }
//	    Drop the first N queued deliveries.
//
// Errors are JSON objects {"error": ..., "code": ...}. With --metrics set a
// second listener serves Prometheus metrics at /metrics.
//
// All state is held in memory and lost on exit. The relay never sees
// plaintext or private keys.
package main
