// Package envelope encodes ratchet envelopes for transport and storage.
//
// The format is a fixed big-endian layout described on Marshal. The first
// byte is a version; readers reject versions they do not know and skip
// extension types they do not understand. Every decoding failure wraps
// domain.ErrMalformedEnvelope, so callers can drop bad input without
// touching session state.
package envelope
