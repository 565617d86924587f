package ratchet

import (
	"fmt"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

// The skipped-key table is a ring of at most Capacity slots. Live entries
// occupy logical positions 0..Count-1 starting at Head, oldest first.
// Slots grows by append until it reaches Capacity; after that Head moves
// only on eviction.

func newRing(capacity int) domain.SkippedKeyRing {
	return domain.SkippedKeyRing{Capacity: capacity}
}

// ringPut stores mk under id, evicting the oldest entry when full.
func ringPut(r *domain.SkippedKeyRing, id domain.SkippedKeyID, mk []byte) {
	if r.Count == r.Capacity {
		oldest := &r.Slots[r.Head]
		tombstone(r, oldest.ID)
		crypto.Wipe(oldest.MessageKey)
		*oldest = domain.SkippedMessageKey{}
		r.Head = (r.Head + 1) % r.Capacity
		r.Count--
	}
	pos := (r.Head + r.Count) % r.Capacity
	if pos == len(r.Slots) {
		r.Slots = append(r.Slots, domain.SkippedMessageKey{})
	}
	r.Slots[pos] = domain.SkippedMessageKey{ID: id, MessageKey: mk}
	r.Count++
}

// ringTake removes and returns the key stored under id.
func ringTake(r *domain.SkippedKeyRing, id domain.SkippedKeyID) ([]byte, bool) {
	for i := 0; i < r.Count; i++ {
		if r.Slots[(r.Head+i)%r.Capacity].ID != id {
			continue
		}
		mk := r.Slots[(r.Head+i)%r.Capacity].MessageKey
		for j := i; j < r.Count-1; j++ {
			r.Slots[(r.Head+j)%r.Capacity] = r.Slots[(r.Head+j+1)%r.Capacity]
		}
		r.Slots[(r.Head+r.Count-1)%r.Capacity] = domain.SkippedMessageKey{}
		r.Count--
		return mk, true
	}
	return nil, false
}

// tombstone remembers an evicted id in a ring of the same capacity.
func tombstone(r *domain.SkippedKeyRing, id domain.SkippedKeyID) {
	if r.EvictedCount == r.Capacity {
		r.Evicted[r.EvictedHead] = id
		r.EvictedHead = (r.EvictedHead + 1) % r.Capacity
		return
	}
	pos := (r.EvictedHead + r.EvictedCount) % r.Capacity
	if pos == len(r.Evicted) {
		r.Evicted = append(r.Evicted, id)
	} else {
		r.Evicted[pos] = id
	}
	r.EvictedCount++
}

func wasEvicted(r *domain.SkippedKeyRing, id domain.SkippedKeyID) bool {
	for i := 0; i < r.EvictedCount; i++ {
		if r.Evicted[(r.EvictedHead+i)%r.Capacity] == id {
			return true
		}
	}
	return false
}

// SkippedKeys returns how many message keys are cached.
func SkippedKeys(st *domain.RatchetState) int { return st.Skipped.Count }

func validateRing(r domain.SkippedKeyRing) error {
	switch {
	case r.Capacity <= 0:
		return fmt.Errorf("skipped key capacity %d", r.Capacity)
	case r.Count < 0 || r.Count > r.Capacity || r.Count > len(r.Slots):
		return fmt.Errorf("skipped key count %d out of range", r.Count)
	case len(r.Slots) > r.Capacity:
		return fmt.Errorf("skipped key table has %d slots for capacity %d", len(r.Slots), r.Capacity)
	case r.Head < 0 || r.Head >= r.Capacity || (r.Head != 0 && len(r.Slots) != r.Capacity):
		return fmt.Errorf("skipped key head %d out of range", r.Head)
	case r.EvictedCount < 0 || r.EvictedCount > r.Capacity || r.EvictedCount > len(r.Evicted):
		return fmt.Errorf("evicted count %d out of range", r.EvictedCount)
	case len(r.Evicted) > r.Capacity:
		return fmt.Errorf("evicted table has %d slots for capacity %d", len(r.Evicted), r.Capacity)
	case r.EvictedHead < 0 || r.EvictedHead >= r.Capacity ||
		(r.EvictedHead != 0 && len(r.Evicted) != r.Capacity):
		return fmt.Errorf("evicted head %d out of range", r.EvictedHead)
	}
	return nil
}
