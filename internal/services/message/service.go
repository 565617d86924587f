package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"

	"unhidra/internal/domain"
	"unhidra/internal/protocol/envelope"
)

// Config holds a Service's collaborators.
type Config struct {
	Local    domain.DeviceID
	Sessions domain.SessionService
	Mailbox  domain.Mailbox
	Log      slog.Logger
	// Now overrides the clock for delivery timestamps.
	Now func() time.Time
}

// Service implements domain.MessageService.
type Service struct {
	cfg Config
	log slog.Logger
}

// New returns a message service.
func New(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg, log: log}
}

// SendMessage encrypts plaintext for to and queues it at the mailbox.
func (s *Service) SendMessage(ctx context.Context, to domain.DeviceID, plaintext []byte) error {
	env, err := s.cfg.Sessions.Encrypt(ctx, to, plaintext)
	if err != nil {
		return err
	}
	raw, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	d := domain.Delivery{
		From:      s.cfg.Local,
		To:        to,
		Payload:   raw,
		Timestamp: s.cfg.Now().Unix(),
	}
	if err := s.cfg.Mailbox.Send(ctx, d); err != nil {
		return fmt.Errorf("queue message to %s: %w", to, err)
	}
	s.log.Debugf("Sent %d byte envelope to %s", len(raw), to)
	return nil
}

// dropPermanently reports whether a delivery failing with err can never be
// decrypted and should be dropped rather than retried.
func dropPermanently(err error) bool {
	for _, target := range []error{
		domain.ErrMalformedEnvelope,
		domain.ErrAuthenticationFailed,
		domain.ErrReplayDetected,
		domain.ErrHandshakeFailed,
		domain.ErrCacheExhausted,
		domain.ErrSkipLimitExceeded,
		domain.ErrUnknownSession,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ReceiveMessages fetches up to limit deliveries and decrypts them in
// order. Deliveries that can never be decrypted are dropped and logged.
// Processing stops at the first transient failure; everything before it
// is acknowledged and the error is returned with the messages decrypted
// so far.
func (s *Service) ReceiveMessages(ctx context.Context, limit int) ([]domain.DecryptedMessage, error) {
	ds, err := s.cfg.Mailbox.Fetch(ctx, s.cfg.Local, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedMessage, 0, len(ds))
	processed := 0
	var procErr error

	for i, d := range ds {
		pt, err := s.open(ctx, d)
		if err != nil && !dropPermanently(err) {
			procErr = fmt.Errorf("message %d from %s: %w", i, d.From, err)
			break
		}
		processed = i + 1
		if err != nil {
			s.log.Warnf("Dropping message from %s: %v", d.From, err)
			continue
		}
		out = append(out, domain.DecryptedMessage{
			From:      d.From,
			To:        d.To,
			Plaintext: pt,
			Timestamp: d.Timestamp,
		})
	}

	if processed > 0 {
		if err := s.cfg.Mailbox.Ack(ctx, s.cfg.Local, processed); err != nil {
			return out, fmt.Errorf("ack %d messages: %w", processed, err)
		}
	}
	return out, procErr
}

func (s *Service) open(ctx context.Context, d domain.Delivery) ([]byte, error) {
	env, err := envelope.Unmarshal(d.Payload)
	if err != nil {
		return nil, err
	}
	return s.cfg.Sessions.Decrypt(ctx, d.From, env)
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
