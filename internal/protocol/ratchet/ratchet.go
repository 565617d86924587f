package ratchet

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
	"unhidra/internal/protocol/x3dh"
)

var (
	errNoRemoteKey    = errors.New("no remote ratchet key yet; wait for the initiator's first message")
	errChainExhausted = errors.New("sending chain counter exhausted")
)

// InitAsInitiator builds the initiator's state from a completed handshake.
// The responder's signed pre-key is the first remote ratchet key; the
// sending chain is derived lazily by the first Encrypt.
func InitAsInitiator(cfg Config, res x3dh.Result) (*domain.RatchetState, error) {
	cfg = cfg.withDefaults()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	initial := res.Initial
	return &domain.RatchetState{
		RootKey:             bytes.Clone(res.SharedSecret),
		DHPriv:              priv,
		DHPub:               pub,
		RemoteRatchetKey:    res.RemoteRatchetKey,
		HasRemoteRatchetKey: true,
		Skipped:             newRing(cfg.SkippedKeyCapacity),
		RetiredKeyLimit:     cfg.RetiredKeyLimit,
		MaxSkip:             cfg.MaxSkip,
		AssociatedData:      bytes.Clone(res.AssociatedData),
		NoOneTimePreKey:     res.NoOneTimePreKey,
		PendingInitial:      &initial,
		HandshakeEphemeral:  res.Initial.EphemeralKey,
		CreatedUTC:          time.Now().Unix(),
	}, nil
}

// InitAsResponder builds the responder's state. The signed pre-key pair is
// the first local ratchet key; the first Decrypt performs the DH ratchet.
func InitAsResponder(cfg Config, res x3dh.Result, spk domain.SignedPreKeyPair) (*domain.RatchetState, error) {
	cfg = cfg.withDefaults()
	if spk.Pub.IsZero() {
		return nil, fmt.Errorf("%w: empty signed pre-key", domain.ErrHandshakeFailed)
	}
	return &domain.RatchetState{
		RootKey:            bytes.Clone(res.SharedSecret),
		DHPriv:             spk.Priv,
		DHPub:              spk.Pub,
		Skipped:            newRing(cfg.SkippedKeyCapacity),
		RetiredKeyLimit:    cfg.RetiredKeyLimit,
		MaxSkip:            cfg.MaxSkip,
		AssociatedData:     bytes.Clone(res.AssociatedData),
		NoOneTimePreKey:    res.NoOneTimePreKey,
		HandshakeEphemeral: res.Initial.EphemeralKey,
		CreatedUTC:         time.Now().Unix(),
	}, nil
}

// Encrypt seals plaintext under the next sending message key. st is only
// modified when an envelope is returned.
func Encrypt(st *domain.RatchetState, plaintext []byte) (domain.Envelope, error) {
	if !st.HasRemoteRatchetKey {
		return domain.Envelope{}, errNoRemoteKey
	}
	if st.Send.N == math.MaxUint32 {
		return domain.Envelope{}, errChainExhausted
	}
	w := Clone(st)
	env, err := encrypt(w, plaintext)
	if err != nil {
		Wipe(w)
		return domain.Envelope{}, err
	}
	commit(st, w)
	return env, nil
}

func encrypt(w *domain.RatchetState, plaintext []byte) (domain.Envelope, error) {
	if !w.Send.Active() {
		dh, err := crypto.DH(w.DHPriv, w.RemoteRatchetKey)
		if err != nil {
			return domain.Envelope{}, err
		}
		rk, ck, err := kdfRK(w.RootKey, dh)
		crypto.Wipe(dh[:])
		if err != nil {
			return domain.Envelope{}, err
		}
		crypto.Wipe(w.RootKey)
		w.RootKey, w.Send = rk, domain.ChainState{Key: ck}
	}

	mk, next := kdfCK(w.Send.Key)
	defer crypto.Wipe(mk)
	crypto.Wipe(w.Send.Key)
	w.Send.Key = next

	env := domain.Envelope{
		Version: domain.EnvelopeVersion,
		Header: domain.RatchetHeader{
			RatchetKey:          w.DHPub,
			PreviousChainLength: w.PreviousChainLength,
			MessageNumber:       w.Send.N,
		},
	}
	if _, err := rand.Read(env.Nonce[:]); err != nil {
		return domain.Envelope{}, err
	}
	sealed, err := seal(mk, env.Nonce, plaintext, associatedData(w.AssociatedData, env.Version, env.Header))
	if err != nil {
		return domain.Envelope{}, err
	}
	cut := len(sealed) - len(env.Tag)
	env.Ciphertext = sealed[:cut:cut]
	copy(env.Tag[:], sealed[cut:])
	if w.PendingInitial != nil {
		initial := *w.PendingInitial
		env.Initial = &initial
	}

	w.Send.N++
	w.Sent = true
	return env, nil
}

// Decrypt authenticates and opens env. On any error st is left exactly as
// it was.
func Decrypt(st *domain.RatchetState, env domain.Envelope) ([]byte, error) {
	if env.Version != domain.EnvelopeVersion {
		return nil, fmt.Errorf("%w: version %d", domain.ErrMalformedEnvelope, env.Version)
	}
	w := Clone(st)
	pt, err := decrypt(w, env)
	if err != nil {
		Wipe(w)
		return nil, err
	}
	commit(st, w)
	return pt, nil
}

func decrypt(w *domain.RatchetState, env domain.Envelope) ([]byte, error) {
	h := env.Header
	ad := associatedData(w.AssociatedData, env.Version, h)
	ct := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	ct = append(append(ct, env.Ciphertext...), env.Tag[:]...)
	id := domain.SkippedKeyID{RatchetKey: h.RatchetKey, N: h.MessageNumber}

	if mk, ok := ringTake(&w.Skipped, id); ok {
		pt, err := open(mk, env.Nonce, ct, ad)
		crypto.Wipe(mk)
		if err != nil {
			return nil, err
		}
		markReceived(w)
		return pt, nil
	}

	switch {
	case w.HasRemoteRatchetKey && h.RatchetKey == w.RemoteRatchetKey:
		if !w.Recv.Active() {
			return nil, fmt.Errorf("%w: no receiving chain for ratchet key", domain.ErrAuthenticationFailed)
		}
		if h.MessageNumber < w.Recv.N {
			return nil, classifyStale(w, id)
		}
	case slices.Contains(w.RetiredRatchetKeys, h.RatchetKey):
		return nil, classifyStale(w, id)
	default:
		if w.HasRemoteRatchetKey && w.Recv.Active() {
			if err := skipTo(w, h.PreviousChainLength); err != nil {
				return nil, err
			}
		}
		if err := dhRatchet(w, h.RatchetKey); err != nil {
			return nil, err
		}
	}

	if err := skipTo(w, h.MessageNumber); err != nil {
		return nil, err
	}
	mk, next := kdfCK(w.Recv.Key)
	defer crypto.Wipe(mk)
	pt, err := open(mk, env.Nonce, ct, ad)
	if err != nil {
		crypto.Wipe(next)
		return nil, err
	}
	crypto.Wipe(w.Recv.Key)
	w.Recv.Key = next
	w.Recv.N++
	markReceived(w)
	return pt, nil
}

func markReceived(w *domain.RatchetState) {
	w.Received = true
	w.PendingInitial = nil
}

// classifyStale tells a key that was evicted from the cache apart from a
// message that was already delivered.
func classifyStale(w *domain.RatchetState, id domain.SkippedKeyID) error {
	if wasEvicted(&w.Skipped, id) {
		return fmt.Errorf("%w: message %d", domain.ErrCacheExhausted, id.N)
	}
	return fmt.Errorf("%w: message %d", domain.ErrReplayDetected, id.N)
}

// skipTo derives and caches receiving message keys up to, but not
// including, counter until.
func skipTo(w *domain.RatchetState, until uint32) error {
	if until <= w.Recv.N {
		return nil
	}
	if gap := until - w.Recv.N; gap > w.MaxSkip {
		return fmt.Errorf("%w: %d keys requested, limit %d", domain.ErrSkipLimitExceeded, gap, w.MaxSkip)
	}
	for w.Recv.N < until {
		mk, next := kdfCK(w.Recv.Key)
		crypto.Wipe(w.Recv.Key)
		w.Recv.Key = next
		ringPut(&w.Skipped, domain.SkippedKeyID{RatchetKey: w.RemoteRatchetKey, N: w.Recv.N}, mk)
		w.Recv.N++
	}
	return nil
}

// dhRatchet performs a DH ratchet step towards a newly seen remote key.
func dhRatchet(w *domain.RatchetState, remote domain.X25519Public) error {
	dh, err := crypto.DH(w.DHPriv, remote)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}
	rk, recvCK, err := kdfRK(w.RootKey, dh)
	crypto.Wipe(dh[:])
	if err != nil {
		return err
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	dh, err = crypto.DH(priv, remote)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}
	rk2, sendCK, err := kdfRK(rk, dh)
	crypto.Wipe(dh[:], rk)
	if err != nil {
		return err
	}

	if w.HasRemoteRatchetKey {
		retire(w, w.RemoteRatchetKey)
	}
	crypto.Wipe(w.RootKey, w.Send.Key, w.Recv.Key)
	w.DHPriv.Wipe()

	w.PreviousChainLength = w.Send.N
	w.RootKey = rk2
	w.Recv = domain.ChainState{Key: recvCK}
	w.Send = domain.ChainState{Key: sendCK}
	w.DHPriv, w.DHPub = priv, pub
	w.RemoteRatchetKey = remote
	w.HasRemoteRatchetKey = true
	return nil
}
