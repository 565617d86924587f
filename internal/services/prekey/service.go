package prekey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

// Policy controls rotation and replenishment.
type Policy struct {
	// RotationInterval is the age at which the signed pre-key is replaced.
	RotationInterval time.Duration
	// Retention is how long a replaced signed pre-key still answers
	// handshakes that name it.
	Retention time.Duration
	// OneTimeBatch is the pool size generated on first use and restored
	// by replenishment.
	OneTimeBatch int
	// LowWatermark triggers replenishment when the pool drops below it.
	LowWatermark int
}

// DefaultPolicy returns a weekly rotation with thirty days of retention.
func DefaultPolicy() Policy {
	return Policy{
		RotationInterval: 7 * 24 * time.Hour,
		Retention:        30 * 24 * time.Hour,
		OneTimeBatch:     100,
		LowWatermark:     10,
	}
}

var errNoSignedPreKey = errors.New("no signed pre-key available; run GenerateAndStore first")

// Config holds a Service's collaborators.
type Config struct {
	Local    domain.DeviceID
	Identity domain.Identity
	PreKeys  domain.PreKeyStore
	// Registry receives uploads from Publish. It may be nil.
	Registry domain.PreKeyRegistry
	Policy   Policy
	Log      slog.Logger
}

// Service manages pre-key pairs and publishes their public halves.
type Service struct {
	cfg Config
	log slog.Logger
}

// New returns a pre-key service.
func New(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Service{cfg: cfg, log: log}
}

// Close wipes the service's copy of the identity.
func (s *Service) Close() { s.cfg.Identity.Wipe() }

func newSignedPreKeyID(now time.Time) domain.SignedPreKeyID {
	return domain.SignedPreKeyID(fmt.Sprintf("spk-%d-%s", now.UTC().Unix(), uuid.NewString()[:8]))
}

// GenerateAndStore creates a signed pre-key and oneTime one-time pre-keys,
// stores them and marks the signed pre-key as current.
func (s *Service) GenerateAndStore(now time.Time, oneTime int) (domain.SignedPreKeyPair, error) {
	spk, err := s.rotate(now)
	if err != nil {
		return domain.SignedPreKeyPair{}, err
	}
	if oneTime > 0 {
		if err := s.addOneTime(oneTime); err != nil {
			return domain.SignedPreKeyPair{}, err
		}
	}
	return spk, nil
}

func (s *Service) rotate(now time.Time) (domain.SignedPreKeyPair, error) {
	spk, err := crypto.GenerateSignedPreKey(s.cfg.Identity, newSignedPreKeyID(now), now)
	if err != nil {
		return domain.SignedPreKeyPair{}, err
	}
	if err := s.cfg.PreKeys.SaveSignedPreKey(spk); err != nil {
		return domain.SignedPreKeyPair{}, err
	}
	if err := s.cfg.PreKeys.SetCurrentSignedPreKeyID(spk.ID); err != nil {
		return domain.SignedPreKeyPair{}, err
	}
	s.log.Infof("New signed pre-key %s", spk.ID)
	return spk, nil
}

func (s *Service) addOneTime(n int) error {
	pairs, err := crypto.GenerateOneTimePreKeys(n)
	if err != nil {
		return err
	}
	if err := s.cfg.PreKeys.SaveOneTimePreKeys(pairs); err != nil {
		return err
	}
	for i := range pairs {
		pairs[i].Wipe()
	}
	s.log.Debugf("Stored %d one-time pre-keys", n)
	return nil
}

// Maintain applies the rotation policy as of now. It does not publish;
// callers publish when the report shows a change.
func (s *Service) Maintain(ctx context.Context, now time.Time) (domain.MaintenanceReport, error) {
	var report domain.MaintenanceReport
	if err := ctx.Err(); err != nil {
		return report, err
	}
	p := s.cfg.Policy

	spks, err := s.cfg.PreKeys.ListSignedPreKeys()
	if err != nil {
		return report, err
	}
	current, ok, err := s.cfg.PreKeys.CurrentSignedPreKeyID()
	if err != nil {
		return report, err
	}
	var currentPair *domain.SignedPreKeyPair
	for i := range spks {
		if ok && spks[i].ID == current {
			currentPair = &spks[i]
		}
	}
	if currentPair == nil || now.Sub(time.Unix(currentPair.CreatedUTC, 0)) >= p.RotationInterval {
		spk, err := s.rotate(now)
		if err != nil {
			return report, err
		}
		spks = append(spks, spk)
		spk.Wipe()
		current = spks[len(spks)-1].ID
		report.Rotated = true
	}

	// A signed pre-key stops being current when the next one is created;
	// spks is oldest first.
	for i := 0; i < len(spks)-1; i++ {
		if spks[i].ID == current {
			continue
		}
		supersededAt := time.Unix(spks[i+1].CreatedUTC, 0)
		if now.Sub(supersededAt) < p.Retention {
			continue
		}
		if err := s.cfg.PreKeys.DeleteSignedPreKey(spks[i].ID); err != nil {
			return report, err
		}
		report.Retired = append(report.Retired, spks[i].ID)
		s.log.Infof("Retired signed pre-key %s", spks[i].ID)
	}
	for i := range spks {
		spks[i].Wipe()
	}

	pool, err := s.cfg.PreKeys.ListOneTimePreKeyPublics()
	if err != nil {
		return report, err
	}
	if len(pool) < p.LowWatermark && p.OneTimeBatch > len(pool) {
		n := p.OneTimeBatch - len(pool)
		if err := s.addOneTime(n); err != nil {
			return report, err
		}
		report.Replenished = n
	}
	return report, nil
}

// Upload builds the public upload for the current signed pre-key and the
// remaining one-time pool.
func (s *Service) Upload() (domain.PreKeyUpload, error) {
	id, ok, err := s.cfg.PreKeys.CurrentSignedPreKeyID()
	if err != nil {
		return domain.PreKeyUpload{}, err
	}
	if !ok {
		return domain.PreKeyUpload{}, errNoSignedPreKey
	}
	spk, found, err := s.cfg.PreKeys.LoadSignedPreKey(id)
	if err != nil {
		return domain.PreKeyUpload{}, err
	}
	if !found {
		return domain.PreKeyUpload{}, errNoSignedPreKey
	}
	defer spk.Wipe()
	pool, err := s.cfg.PreKeys.ListOneTimePreKeyPublics()
	if err != nil {
		return domain.PreKeyUpload{}, err
	}
	return domain.PreKeyUpload{
		Device:                s.cfg.Local,
		IdentityKey:           s.cfg.Identity.XPub,
		SigningKey:            s.cfg.Identity.EdPub,
		SignedPreKeyID:        spk.ID,
		SignedPreKey:          spk.Pub,
		SignedPreKeySignature: spk.Signature,
		OneTimePreKeys:        pool,
	}, nil
}

// Publish uploads the current public material to the registry.
func (s *Service) Publish(ctx context.Context) (domain.BundleID, error) {
	if s.cfg.Registry == nil {
		return "", errors.New("no pre-key registry configured")
	}
	up, err := s.Upload()
	if err != nil {
		return "", err
	}
	id, err := s.cfg.Registry.Publish(ctx, s.cfg.Local, up)
	if err != nil {
		return "", fmt.Errorf("publish pre-keys: %w", err)
	}
	s.log.Infof("Published bundle %s (spk %s, %d one-time keys)", id, up.SignedPreKeyID,
		len(up.OneTimePreKeys))
	return id, nil
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
