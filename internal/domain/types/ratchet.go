package types

// RatchetHeader is sent alongside every ciphertext. It is authenticated as
// associated data but never encrypted.
type RatchetHeader struct {
	RatchetKey          X25519Public `json:"ratchet_key"`
	PreviousChainLength uint32       `json:"pn"`
	MessageNumber       uint32       `json:"n"`
}

// ChainState is one symmetric KDF chain and its message counter.
type ChainState struct {
	Key []byte `json:"key,omitempty"`
	N   uint32 `json:"n"`
}

// Active reports whether the chain has been seeded.
func (c ChainState) Active() bool { return len(c.Key) != 0 }

// SkippedKeyID addresses a message key by the remote ratchet key of its
// epoch and its counter within that epoch's chain.
type SkippedKeyID struct {
	RatchetKey X25519Public `json:"ratchet_key"`
	N          uint32       `json:"n"`
}

// SkippedMessageKey is one cached message key.
type SkippedMessageKey struct {
	ID         SkippedKeyID `json:"id"`
	MessageKey []byte       `json:"mk,omitempty"`
}

// SkippedKeyRing is a fixed-capacity, insertion-ordered table of message
// keys derived ahead of use. Slots is a ring indexed from Head; when Count
// reaches Capacity the oldest entry is evicted and its id is remembered in
// the Evicted ring so a late arrival can be told apart from a replay.
type SkippedKeyRing struct {
	Capacity int                 `json:"capacity"`
	Slots    []SkippedMessageKey `json:"slots,omitempty"`
	Head     int                 `json:"head"`
	Count    int                 `json:"count"`

	Evicted      []SkippedKeyID `json:"evicted,omitempty"`
	EvictedHead  int            `json:"evicted_head"`
	EvictedCount int            `json:"evicted_count"`
}

// SessionPhase is the coarse lifecycle of a session.
type SessionPhase int

const (
	// PhaseUninitialized means no ratchet state exists for the pair.
	PhaseUninitialized SessionPhase = iota
	// PhaseEstablishedSender means traffic has flowed in one direction only.
	PhaseEstablishedSender
	// PhaseEstablishedBidirectional means both sides have sent and received.
	PhaseEstablishedBidirectional
)

// String returns a short name for the phase.
func (p SessionPhase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseEstablishedSender:
		return "established-sender"
	case PhaseEstablishedBidirectional:
		return "established-bidirectional"
	default:
		return "unknown"
	}
}

// RatchetState contains all fields the Double Ratchet needs to track for
// one (local, peer) pair.
type RatchetState struct {
	RootKey []byte `json:"root_key"`

	// Current local ratchet key pair.
	DHPriv X25519Private `json:"dh_priv"`
	DHPub  X25519Public  `json:"dh_pub"`

	// Most recently observed remote ratchet key.
	RemoteRatchetKey    X25519Public `json:"remote_ratchet_key"`
	HasRemoteRatchetKey bool         `json:"has_remote_ratchet_key"`

	Send                ChainState `json:"send"`
	Recv                ChainState `json:"recv"`
	PreviousChainLength uint32     `json:"pn"`

	Skipped            SkippedKeyRing `json:"skipped"`
	RetiredRatchetKeys []X25519Public `json:"retired_ratchet_keys,omitempty"`
	RetiredKeyLimit    int            `json:"retired_key_limit,omitempty"`
	MaxSkip            uint32         `json:"max_skip"`

	// AssociatedData binds both identity keys; set by the handshake.
	AssociatedData []byte `json:"ad"`
	// NoOneTimePreKey marks a session whose handshake had no one-time pre-key.
	NoOneTimePreKey bool `json:"no_one_time_pre_key"`
	// PendingInitial is attached to outbound envelopes until the peer replies.
	PendingInitial *InitialMessage `json:"pending_initial,omitempty"`
	// HandshakeEphemeral is the initiator ephemeral key of the handshake that
	// created this session.
	HandshakeEphemeral X25519Public `json:"handshake_ephemeral"`

	Sent       bool  `json:"sent"`
	Received   bool  `json:"received"`
	CreatedUTC int64 `json:"created_utc"`
}
