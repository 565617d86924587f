package types

// EnvelopeVersion is the wire version written by this build.
const EnvelopeVersion = 1

// Envelope is the only artefact the transport and storage layers see.
type Envelope struct {
	Version    uint8           `json:"version"`
	Header     RatchetHeader   `json:"header"`
	Nonce      [24]byte        `json:"nonce"`
	Ciphertext []byte          `json:"ciphertext"`
	Tag        [16]byte        `json:"tag"`
	Initial    *InitialMessage `json:"initial,omitempty"`
	Extensions []Extension     `json:"extensions,omitempty"`
}

// Extension is an optional type-length-value field. Readers skip types they
// do not understand.
type Extension struct {
	Type  uint16 `json:"type"`
	Value []byte `json:"value"`
}

// Delivery is one opaque envelope queued at the relay for a recipient.
type Delivery struct {
	From      DeviceID `json:"from"`
	To        DeviceID `json:"to"`
	Payload   []byte   `json:"payload"`
	Timestamp int64    `json:"timestamp"`
}

// DecryptedMessage is what the message service hands back to callers.
type DecryptedMessage struct {
	From      DeviceID `json:"from"`
	To        DeviceID `json:"to"`
	Plaintext []byte   `json:"plaintext"`
	Timestamp int64    `json:"timestamp"`
}
