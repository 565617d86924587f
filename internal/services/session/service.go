package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/protocol/ratchet"
	"unhidra/internal/protocol/x3dh"
	"unhidra/internal/store"
)

// Config holds a Service's collaborators.
type Config struct {
	// Local is this device.
	Local domain.DeviceID
	// Identity is the unlocked local identity. The service wipes its copy
	// on Close.
	Identity domain.Identity

	PreKeys  domain.PreKeyStore
	Sessions *store.SessionStore
	// Registry is told about consumed one-time pre-keys and serves Connect.
	// It may be nil.
	Registry domain.PreKeyRegistry

	Ratchet ratchet.Config
	Log     slog.Logger
}

// Service implements domain.SessionService for one local device.
type Service struct {
	cfg Config
	log slog.Logger
}

// New returns a session service.
func New(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Service{cfg: cfg, log: log}
}

// Close wipes the service's copy of the identity.
func (s *Service) Close() { s.cfg.Identity.Wipe() }

// Connect fetches peer's bundle from the registry and initiates a session.
func (s *Service) Connect(ctx context.Context, peer domain.DeviceID) error {
	if s.cfg.Registry == nil {
		return errors.New("no pre-key registry configured")
	}
	bundle, err := s.cfg.Registry.Fetch(ctx, peer)
	if err != nil {
		return err
	}
	return s.Initiate(ctx, peer, bundle)
}

// Initiate runs the initiator side of the handshake against bundle and
// stores the new session, replacing any previous one with peer.
func (s *Service) Initiate(ctx context.Context, peer domain.DeviceID, bundle domain.PreKeyBundle) error {
	if bundle.Device != "" && bundle.Device != peer {
		return fmt.Errorf("%w: bundle is for %s, not %s", domain.ErrHandshakeFailed, bundle.Device, peer)
	}
	res, err := x3dh.Initiate(s.cfg.Identity, bundle)
	if err != nil {
		s.log.Warnf("Handshake with %s rejected: %v", peer, err)
		return err
	}
	defer res.Wipe()

	st, err := ratchet.InitAsInitiator(s.cfg.Ratchet, res)
	if err != nil {
		return err
	}
	if err := s.cfg.Sessions.Create(ctx, s.cfg.Local, peer, st); err != nil {
		return err
	}
	if res.NoOneTimePreKey {
		s.log.Warnf("Session with %s started without a one-time pre-key", peer)
	}
	s.log.Infof("Initiated session with %s (bundle %s, spk %s)", peer, bundle.BundleID,
		bundle.SignedPreKeyID)
	return nil
}

// Encrypt seals plaintext for peer.
func (s *Service) Encrypt(ctx context.Context, peer domain.DeviceID, plaintext []byte) (domain.Envelope, error) {
	var env domain.Envelope
	err := s.cfg.Sessions.WithSession(ctx, s.cfg.Local, peer, func(st *domain.RatchetState) error {
		var err error
		env, err = ratchet.Encrypt(st, plaintext)
		return err
	})
	if err != nil {
		return domain.Envelope{}, err
	}
	s.log.Tracef("Encrypted message to %s (pn=%d n=%d)", peer,
		env.Header.PreviousChainLength, env.Header.MessageNumber)
	return env, nil
}

// Decrypt opens env from peer. An envelope carrying an initial message
// creates (or supersedes) the session when it does not belong to the
// stored one. A handshake that was already accepted once is a replay.
//
// When both sides initiate before hearing from each other, the side whose
// identity key sorts lower keeps its own session and rejects the peer's
// handshake; the other side adopts it.
func (s *Service) Decrypt(ctx context.Context, peer domain.DeviceID, env domain.Envelope) ([]byte, error) {
	lease, err := s.cfg.Sessions.Acquire(ctx, s.cfg.Local, peer)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	st := lease.State()
	if env.Initial != nil && (st == nil || st.HandshakeEphemeral != env.Initial.EphemeralKey) {
		msg := env.Initial
		seen, err := s.cfg.PreKeys.HandshakeSeen(msg.SignedPreKeyID, msg.EphemeralKey)
		if err != nil {
			return nil, err
		}
		if seen {
			err := fmt.Errorf("%w: handshake already accepted", domain.ErrReplayDetected)
			s.logRejected(peer, env, err)
			return nil, err
		}
		if st != nil && st.PendingInitial != nil &&
			bytes.Compare(s.cfg.Identity.XPub[:], msg.IdentityKey[:]) < 0 {
			err := fmt.Errorf("%w: simultaneous initiation, keeping the local handshake",
				domain.ErrHandshakeFailed)
			s.log.Infof("Ignoring handshake from %s: %v", peer, err)
			return nil, err
		}
		return s.respond(ctx, lease, env)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s->%s", domain.ErrUnknownSession, s.cfg.Local, peer)
	}

	pt, err := ratchet.Decrypt(st, env)
	if err != nil {
		s.logRejected(peer, env, err)
		return nil, err
	}
	if err := lease.Commit(ctx); err != nil {
		crypto.Wipe(pt)
		return nil, err
	}
	return pt, nil
}

// respond runs the responder side of the handshake for env under lease.
// Nothing is stored and no pre-key is consumed unless env authenticates.
func (s *Service) respond(ctx context.Context, lease *store.Lease, env domain.Envelope) ([]byte, error) {
	peer := lease.Peer()
	msg := *env.Initial

	spk, ok, err := s.cfg.PreKeys.LoadSignedPreKey(msg.SignedPreKeyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		err := fmt.Errorf("%w: unknown or retired signed pre-key %s",
			domain.ErrHandshakeFailed, msg.SignedPreKeyID)
		s.log.Warnf("Handshake from %s rejected: %v", peer, err)
		return nil, err
	}
	defer spk.Wipe()

	var opk *domain.OneTimePreKeyPair
	if msg.OneTimePreKeyID != "" {
		pair, ok, err := s.cfg.PreKeys.LoadOneTimePreKey(msg.OneTimePreKeyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			err := fmt.Errorf("%w: one-time pre-key %s unknown or already consumed",
				domain.ErrHandshakeFailed, msg.OneTimePreKeyID)
			s.log.Warnf("Handshake from %s rejected: %v", peer, err)
			return nil, err
		}
		defer pair.Wipe()
		opk = &pair
	}

	res, err := x3dh.Respond(s.cfg.Identity, spk, opk, msg)
	if err != nil {
		s.log.Warnf("Handshake from %s rejected: %v", peer, err)
		return nil, err
	}
	defer res.Wipe()

	st, err := ratchet.InitAsResponder(s.cfg.Ratchet, res, spk)
	if err != nil {
		return nil, err
	}
	pt, err := ratchet.Decrypt(st, env)
	if err != nil {
		ratchet.Wipe(st)
		err = fmt.Errorf("%w: first message: %w", domain.ErrHandshakeFailed, err)
		s.logRejected(peer, env, err)
		return nil, err
	}

	if opk != nil {
		_, ok, err := s.cfg.PreKeys.ConsumeOneTimePreKey(opk.ID)
		if err == nil && !ok {
			err = fmt.Errorf("%w: one-time pre-key %s consumed concurrently",
				domain.ErrHandshakeFailed, opk.ID)
			s.log.Warnf("Handshake from %s rejected: %v", peer, err)
		}
		if err != nil {
			ratchet.Wipe(st)
			crypto.Wipe(pt)
			return nil, err
		}
		if s.cfg.Registry != nil {
			err := s.cfg.Registry.ConsumeOneTimePreKey(ctx, s.cfg.Local, opk.ID)
			if err != nil {
				s.log.Warnf("Unable to consume one-time pre-key %s at the registry: %v", opk.ID, err)
			}
		}
	} else {
		s.log.Warnf("Accepted handshake from %s without a one-time pre-key", peer)
	}

	fresh, err := s.cfg.PreKeys.RecordHandshake(msg.SignedPreKeyID, msg.EphemeralKey)
	if err == nil && !fresh {
		err = fmt.Errorf("%w: handshake accepted concurrently", domain.ErrReplayDetected)
		s.logRejected(peer, env, err)
	}
	if err != nil {
		ratchet.Wipe(st)
		crypto.Wipe(pt)
		return nil, err
	}

	superseded := lease.State() != nil
	lease.Replace(st)
	if err := lease.Commit(ctx); err != nil {
		crypto.Wipe(pt)
		return nil, err
	}
	if superseded {
		s.log.Infof("New handshake from %s superseded the previous session", peer)
	} else {
		s.log.Infof("Accepted session from %s (spk %s)", peer, msg.SignedPreKeyID)
	}
	return pt, nil
}

// logRejected records security-relevant decrypt failures. Only ids and
// counters are logged.
func (s *Service) logRejected(peer domain.DeviceID, env domain.Envelope, err error) {
	h := env.Header
	switch {
	case errors.Is(err, domain.ErrReplayDetected),
		errors.Is(err, domain.ErrAuthenticationFailed),
		errors.Is(err, domain.ErrHandshakeFailed),
		errors.Is(err, domain.ErrCacheExhausted),
		errors.Is(err, domain.ErrSkipLimitExceeded):
		s.log.Warnf("Rejected message from %s (pn=%d n=%d): %v", peer,
			h.PreviousChainLength, h.MessageNumber, err)
	default:
		s.log.Debugf("Decrypt from %s failed (pn=%d n=%d): %v", peer,
			h.PreviousChainLength, h.MessageNumber, err)
	}
}

// Phase reports the session phase with peer.
func (s *Service) Phase(ctx context.Context, peer domain.DeviceID) (domain.SessionPhase, error) {
	return s.cfg.Sessions.Phase(ctx, s.cfg.Local, peer)
}

// Reset deletes the session with peer.
func (s *Service) Reset(ctx context.Context, peer domain.DeviceID) error {
	if err := s.cfg.Sessions.Delete(ctx, s.cfg.Local, peer); err != nil {
		return err
	}
	s.log.Infof("Reset session with %s", peer)
	return nil
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
