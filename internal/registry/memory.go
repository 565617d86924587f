package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

// devicePool is everything the registry holds for one device.
type devicePool struct {
	bundle    domain.PreKeyBundle
	available []domain.OneTimePreKeyPublic
	issued    map[domain.OneTimePreKeyID]struct{}
	consumed  map[domain.OneTimePreKeyID]struct{}
}

// MemoryRegistry is a concurrency-safe in-memory PreKeyRegistry.
type MemoryRegistry struct {
	mu      sync.Mutex
	devices map[domain.DeviceID]*devicePool
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{devices: make(map[domain.DeviceID]*devicePool)}
}

// ValidateUpload checks an upload's shape and signed pre-key signature.
func ValidateUpload(device domain.DeviceID, up domain.PreKeyUpload) error {
	switch {
	case device == "":
		return fmt.Errorf("empty device id")
	case up.Device != "" && up.Device != device:
		return fmt.Errorf("upload for %q published as %q", up.Device, device)
	case up.IdentityKey.IsZero(), up.SigningKey.IsZero(), up.SignedPreKey.IsZero():
		return fmt.Errorf("upload for %q has a zero key", device)
	case up.SignedPreKeyID == "":
		return fmt.Errorf("upload for %q has no signed pre-key id", device)
	case !crypto.Verify(up.SigningKey, up.SignedPreKey.Slice(), up.SignedPreKeySignature):
		return fmt.Errorf("upload for %q: bad signed pre-key signature", device)
	}
	seen := make(map[domain.OneTimePreKeyID]struct{}, len(up.OneTimePreKeys))
	for _, opk := range up.OneTimePreKeys {
		if opk.ID == "" || opk.Pub.IsZero() {
			return fmt.Errorf("upload for %q has a malformed one-time pre-key", device)
		}
		if _, dup := seen[opk.ID]; dup {
			return fmt.Errorf("upload for %q repeats one-time pre-key %s", device, opk.ID)
		}
		seen[opk.ID] = struct{}{}
	}
	return nil
}

// Publish replaces the device's bundle and available one-time pre-key
// pool. Keys already issued or consumed are not handed out again even if
// the upload repeats them.
func (r *MemoryRegistry) Publish(ctx context.Context, device domain.DeviceID,
	up domain.PreKeyUpload) (domain.BundleID, error) {

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateUpload(device, up); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.devices[device]
	if !ok {
		pool = &devicePool{
			issued:   make(map[domain.OneTimePreKeyID]struct{}),
			consumed: make(map[domain.OneTimePreKeyID]struct{}),
		}
		r.devices[device] = pool
	}
	id := domain.BundleID(uuid.NewString())
	pool.bundle = domain.PreKeyBundle{
		BundleID:              id,
		Device:                device,
		IdentityKey:           up.IdentityKey,
		SigningKey:            up.SigningKey,
		SignedPreKeyID:        up.SignedPreKeyID,
		SignedPreKey:          up.SignedPreKey,
		SignedPreKeySignature: append([]byte(nil), up.SignedPreKeySignature...),
	}
	pool.available = pool.available[:0]
	for _, opk := range up.OneTimePreKeys {
		if _, ok := pool.issued[opk.ID]; ok {
			continue
		}
		if _, ok := pool.consumed[opk.ID]; ok {
			continue
		}
		pool.available = append(pool.available, opk)
	}
	log.Debugf("Published bundle %s for %s (spk %s, %d one-time keys)",
		id, device, up.SignedPreKeyID, len(pool.available))
	return id, nil
}

// Fetch returns the device's bundle with at most one one-time pre-key.
func (r *MemoryRegistry) Fetch(ctx context.Context, device domain.DeviceID) (domain.PreKeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.PreKeyBundle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.devices[device]
	if !ok {
		return domain.PreKeyBundle{}, fmt.Errorf("fetch %s: %w", device, domain.ErrBundleNotFound)
	}
	b := pool.bundle
	b.SignedPreKeySignature = append([]byte(nil), b.SignedPreKeySignature...)
	if len(pool.available) > 0 {
		opk := pool.available[0]
		pool.available = pool.available[1:]
		pool.issued[opk.ID] = struct{}{}
		b.OneTimePreKey = &opk
	} else {
		log.Warnf("Handing out bundle for %s without a one-time pre-key", device)
	}
	return b, nil
}

// ConsumeOneTimePreKey deletes a one-time pre-key whether it is still
// available or already issued.
func (r *MemoryRegistry) ConsumeOneTimePreKey(ctx context.Context, device domain.DeviceID,
	id domain.OneTimePreKeyID) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.devices[device]
	if !ok {
		return fmt.Errorf("consume %s/%s: %w", device, id, domain.ErrBundleNotFound)
	}
	if _, ok := pool.consumed[id]; ok {
		return fmt.Errorf("consume %s/%s: %w", device, id, domain.ErrPreKeyConsumed)
	}
	if _, ok := pool.issued[id]; ok {
		delete(pool.issued, id)
		pool.consumed[id] = struct{}{}
		return nil
	}
	for i, opk := range pool.available {
		if opk.ID == id {
			pool.available = append(pool.available[:i], pool.available[i+1:]...)
			pool.consumed[id] = struct{}{}
			return nil
		}
	}
	return fmt.Errorf("consume %s/%s: %w", device, id, domain.ErrPreKeyConsumed)
}

// Remove drops everything held for device.
func (r *MemoryRegistry) Remove(ctx context.Context, device domain.DeviceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.devices, device)
	r.mu.Unlock()
	return nil
}

// Available returns the number of one-time pre-keys device still has in
// its pool.
func (r *MemoryRegistry) Available(device domain.DeviceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.devices[device]; ok {
		return len(pool.available)
	}
	return 0
}

var _ domain.PreKeyRegistry = (*MemoryRegistry)(nil)
