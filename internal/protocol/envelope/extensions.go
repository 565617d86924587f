package envelope

import "unhidra/internal/domain"

// Extension types understood by this build. Others are dropped on decode.
const (
	// ExtPadding carries filler bytes so encoded envelopes fall into a small
	// set of sizes. Its value has no meaning.
	ExtPadding uint16 = 0x0001
)

func known(typ uint16) bool {
	switch typ {
	case ExtPadding:
		return true
	}
	return false
}

// Pad adds an ExtPadding extension so that the encoded envelope is a
// multiple of block bytes. Envelopes that already carry padding are
// returned unchanged.
func Pad(env domain.Envelope, block int) (domain.Envelope, error) {
	if block <= 0 {
		return env, nil
	}
	for _, ext := range env.Extensions {
		if ext.Type == ExtPadding {
			return env, nil
		}
	}
	raw, err := Marshal(env)
	if err != nil {
		return env, err
	}
	// The extension header itself costs four bytes.
	size := len(raw) + 4
	fill := (block - size%block) % block
	env.Extensions = append(append([]domain.Extension(nil), env.Extensions...),
		domain.Extension{Type: ExtPadding, Value: make([]byte, fill)})
	return env, nil
}
