package ratchet

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

// Clone returns a deep copy of st sharing no mutable memory with it.
func Clone(st *domain.RatchetState) *domain.RatchetState {
	c := *st
	c.RootKey = bytes.Clone(st.RootKey)
	c.Send.Key = bytes.Clone(st.Send.Key)
	c.Recv.Key = bytes.Clone(st.Recv.Key)
	c.AssociatedData = bytes.Clone(st.AssociatedData)
	c.RetiredRatchetKeys = slices.Clone(st.RetiredRatchetKeys)
	c.Skipped.Evicted = slices.Clone(st.Skipped.Evicted)
	if st.Skipped.Slots != nil {
		c.Skipped.Slots = make([]domain.SkippedMessageKey, len(st.Skipped.Slots))
		for i, s := range st.Skipped.Slots {
			c.Skipped.Slots[i] = domain.SkippedMessageKey{ID: s.ID, MessageKey: bytes.Clone(s.MessageKey)}
		}
	}
	if st.PendingInitial != nil {
		pi := *st.PendingInitial
		c.PendingInitial = &pi
	}
	return &c
}

// Wipe zeroes every secret held by st.
func Wipe(st *domain.RatchetState) {
	if st == nil {
		return
	}
	crypto.Wipe(st.RootKey, st.Send.Key, st.Recv.Key)
	for i := range st.Skipped.Slots {
		crypto.Wipe(st.Skipped.Slots[i].MessageKey)
	}
	st.DHPriv.Wipe()
}

// Phase reports the lifecycle of st. A nil state is uninitialised.
func Phase(st *domain.RatchetState) domain.SessionPhase {
	switch {
	case st == nil:
		return domain.PhaseUninitialized
	case st.Sent && st.Received:
		return domain.PhaseEstablishedBidirectional
	default:
		return domain.PhaseEstablishedSender
	}
}

// Validate checks the structural invariants of a state read back from
// storage.
func Validate(st *domain.RatchetState) error {
	if len(st.RootKey) != 32 {
		return errors.New("root key must be 32 bytes")
	}
	if st.Send.Active() && len(st.Send.Key) != 32 {
		return errors.New("sending chain key must be 32 bytes")
	}
	if st.Recv.Active() && len(st.Recv.Key) != 32 {
		return errors.New("receiving chain key must be 32 bytes")
	}
	if st.MaxSkip == 0 {
		return errors.New("max skip is zero")
	}
	if st.RetiredKeyLimit < 0 {
		return errors.New("retired key limit is negative")
	}
	if len(st.RetiredRatchetKeys) > retiredLimit(st) {
		return fmt.Errorf("%d retired ratchet keys", len(st.RetiredRatchetKeys))
	}
	return validateRing(st.Skipped)
}

// commit replaces *dst with *src and wipes the superseded secrets.
func commit(dst, src *domain.RatchetState) {
	old := *dst
	*dst = *src
	Wipe(&old)
}

// retiredLimit is the state's retired-key bound. States written before
// the bound was stored use the default.
func retiredLimit(st *domain.RatchetState) int {
	if st.RetiredKeyLimit <= 0 {
		return DefaultRetiredKeyLimit
	}
	return st.RetiredKeyLimit
}

func retire(st *domain.RatchetState, key domain.X25519Public) {
	st.RetiredRatchetKeys = append(st.RetiredRatchetKeys, key)
	if limit, n := retiredLimit(st), len(st.RetiredRatchetKeys); n > limit {
		st.RetiredRatchetKeys = slices.Clone(st.RetiredRatchetKeys[n-limit:])
	}
}
