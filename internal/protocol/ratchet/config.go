package ratchet

const (
	// DefaultSkippedKeyCapacity is the number of out-of-order message keys
	// a session keeps before evicting the oldest.
	DefaultSkippedKeyCapacity = 1000

	// DefaultMaxSkip bounds how many message keys a single header may
	// force the receiver to derive in one chain.
	DefaultMaxSkip = 1000

	// DefaultRetiredKeyLimit is how many past remote ratchet keys are
	// remembered for replay classification.
	DefaultRetiredKeyLimit = 8
)

// Config tunes per-session limits. Zero values select the defaults.
type Config struct {
	SkippedKeyCapacity int
	MaxSkip            uint32
	// RetiredKeyLimit is how many past remote ratchet keys are remembered.
	// A replay from an older epoch is not recognised as one and fails
	// authentication instead.
	RetiredKeyLimit int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SkippedKeyCapacity: DefaultSkippedKeyCapacity,
		MaxSkip:            DefaultMaxSkip,
		RetiredKeyLimit:    DefaultRetiredKeyLimit,
	}
}

func (c Config) withDefaults() Config {
	if c.SkippedKeyCapacity <= 0 {
		c.SkippedKeyCapacity = DefaultSkippedKeyCapacity
	}
	if c.MaxSkip == 0 {
		c.MaxSkip = DefaultMaxSkip
	}
	if c.RetiredKeyLimit <= 0 {
		c.RetiredKeyLimit = DefaultRetiredKeyLimit
	}
	return c
}
