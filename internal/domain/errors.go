package domain

import "errors"

// Error taxonomy shared by the protocol, store and service layers. Callers
// classify failures with errors.Is; concrete errors wrap one of these.
var (
	// ErrHandshakeFailed covers a bad signature, a malformed bundle or a
	// missing/consumed pre-key. No session is created.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrAuthenticationFailed means the AEAD tag did not verify. The
	// session is left exactly as it was.
	ErrAuthenticationFailed = errors.New("message authentication failed")

	// ErrReplayDetected means the counter was already consumed.
	ErrReplayDetected = errors.New("replayed message")

	// ErrUnknownSession means no session exists for the pair.
	ErrUnknownSession = errors.New("unknown session")

	// ErrCacheExhausted means the skipped message key was evicted before
	// the message arrived; the message cannot be decrypted.
	ErrCacheExhausted = errors.New("skipped message key evicted")

	// ErrLeaseContention means another operation holds the session.
	ErrLeaseContention = errors.New("session lease held elsewhere")

	// ErrSkipLimitExceeded means the header would require deriving more
	// message keys in one chain than the session allows.
	ErrSkipLimitExceeded = errors.New("too many skipped messages")

	// ErrMalformedEnvelope is returned by the envelope codec for any
	// input it cannot parse.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrPreKeyConsumed is returned by a registry when a one-time pre-key
	// was already consumed.
	ErrPreKeyConsumed = errors.New("one-time pre-key already consumed")

	// ErrBundleNotFound is returned by a registry for an unknown device.
	ErrBundleNotFound = errors.New("pre-key bundle not found")
)
