package store

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"unhidra/internal/domain"
	"unhidra/internal/protocol/ratchet"
)

// stateFormatVersion prefixes every serialized ratchet state.
const stateFormatVersion = 1

var (
	errUnknownStateFormat = errors.New("unknown session state format")

	stateEncMode cbor.EncMode
	stateDecMode cbor.DecMode
)

func init() {
	var err error
	if stateEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	stateDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeState serializes st, skipped-key ring included, so that
// DecodeState yields an identical state.
func EncodeState(st *domain.RatchetState) ([]byte, error) {
	body, err := stateEncMode.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}
	return append([]byte{stateFormatVersion}, body...), nil
}

// DecodeState parses a state written by EncodeState and checks its
// structural invariants.
func DecodeState(b []byte) (*domain.RatchetState, error) {
	if len(b) == 0 || b[0] != stateFormatVersion {
		return nil, errUnknownStateFormat
	}
	var st domain.RatchetState
	if err := stateDecMode.Unmarshal(b[1:], &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if err := ratchet.Validate(&st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &st, nil
}
