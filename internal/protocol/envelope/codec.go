package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"unhidra/internal/domain"
)

const (
	// MaxCiphertext limits the ciphertext carried by one envelope.
	MaxCiphertext = 1 << 20 // 1 MiB

	flagInitial = 0x01

	// fixed part: version, flags, ratchet key, pn, n, nonce.
	fixedLen = 1 + 1 + 32 + 4 + 4 + 24
)

var errTruncated = errors.New("truncated")

// Marshal encodes env in the version 1 wire format:
//
//	u8 version | u8 flags | 32 ratchet key | u32 pn | u32 n | 24 nonce
//	[initial: 32 ik | 32 signing key | 32 ek | u8+spk id | u8+opk id]
//	u16 extension count { u16 type | u16 len | value }
//	u32 ciphertext len | ciphertext | 16 tag
//
// Integers are big endian.
func Marshal(env domain.Envelope) ([]byte, error) {
	if env.Version != domain.EnvelopeVersion {
		return nil, fmt.Errorf("%w: version %d", domain.ErrMalformedEnvelope, env.Version)
	}
	if len(env.Ciphertext) > MaxCiphertext {
		return nil, fmt.Errorf("%w: ciphertext of %d bytes", domain.ErrMalformedEnvelope, len(env.Ciphertext))
	}
	if len(env.Extensions) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d extensions", domain.ErrMalformedEnvelope, len(env.Extensions))
	}

	out := make([]byte, 0, fixedLen+len(env.Ciphertext)+64)
	var flags byte
	if env.Initial != nil {
		flags |= flagInitial
	}
	out = append(out, env.Version, flags)
	out = append(out, env.Header.RatchetKey[:]...)
	out = binary.BigEndian.AppendUint32(out, env.Header.PreviousChainLength)
	out = binary.BigEndian.AppendUint32(out, env.Header.MessageNumber)
	out = append(out, env.Nonce[:]...)

	if m := env.Initial; m != nil {
		out = append(out, m.IdentityKey[:]...)
		out = append(out, m.SigningKey[:]...)
		out = append(out, m.EphemeralKey[:]...)
		var err error
		if out, err = appendShortString(out, string(m.SignedPreKeyID)); err != nil {
			return nil, err
		}
		if out, err = appendShortString(out, string(m.OneTimePreKeyID)); err != nil {
			return nil, err
		}
	}

	out = binary.BigEndian.AppendUint16(out, uint16(len(env.Extensions)))
	for _, ext := range env.Extensions {
		if len(ext.Value) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: extension %d value of %d bytes", domain.ErrMalformedEnvelope, ext.Type, len(ext.Value))
		}
		out = binary.BigEndian.AppendUint16(out, ext.Type)
		out = binary.BigEndian.AppendUint16(out, uint16(len(ext.Value)))
		out = append(out, ext.Value...)
	}

	out = binary.BigEndian.AppendUint32(out, uint32(len(env.Ciphertext)))
	out = append(out, env.Ciphertext...)
	out = append(out, env.Tag[:]...)
	return out, nil
}

// Unmarshal decodes b. Any structural problem yields an error wrapping
// domain.ErrMalformedEnvelope.
func Unmarshal(b []byte) (domain.Envelope, error) {
	env, err := unmarshal(&reader{buf: b})
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %w", domain.ErrMalformedEnvelope, err)
	}
	return env, nil
}

func unmarshal(r *reader) (domain.Envelope, error) {
	var env domain.Envelope
	version, err := r.u8()
	if err != nil {
		return env, err
	}
	if version != domain.EnvelopeVersion {
		return env, fmt.Errorf("unknown version %d", version)
	}
	env.Version = version
	flags, err := r.u8()
	if err != nil {
		return env, err
	}
	if err := r.fill(env.Header.RatchetKey[:]); err != nil {
		return env, err
	}
	if env.Header.PreviousChainLength, err = r.u32(); err != nil {
		return env, err
	}
	if env.Header.MessageNumber, err = r.u32(); err != nil {
		return env, err
	}
	if err := r.fill(env.Nonce[:]); err != nil {
		return env, err
	}

	if flags&flagInitial != 0 {
		m := &domain.InitialMessage{}
		if err := r.fill(m.IdentityKey[:]); err != nil {
			return env, err
		}
		if err := r.fill(m.SigningKey[:]); err != nil {
			return env, err
		}
		if err := r.fill(m.EphemeralKey[:]); err != nil {
			return env, err
		}
		spk, err := r.str()
		if err != nil {
			return env, err
		}
		opk, err := r.str()
		if err != nil {
			return env, err
		}
		m.SignedPreKeyID = domain.SignedPreKeyID(spk)
		m.OneTimePreKeyID = domain.OneTimePreKeyID(opk)
		env.Initial = m
	}

	count, err := r.u16()
	if err != nil {
		return env, err
	}
	for i := 0; i < int(count); i++ {
		typ, err := r.u16()
		if err != nil {
			return env, err
		}
		n, err := r.u16()
		if err != nil {
			return env, err
		}
		val, err := r.next(int(n))
		if err != nil {
			return env, err
		}
		if known(typ) {
			env.Extensions = append(env.Extensions, domain.Extension{Type: typ, Value: append([]byte(nil), val...)})
		}
	}

	ctLen, err := r.u32()
	if err != nil {
		return env, err
	}
	if ctLen > MaxCiphertext {
		return env, fmt.Errorf("ciphertext of %d bytes exceeds %d", ctLen, MaxCiphertext)
	}
	ct, err := r.next(int(ctLen))
	if err != nil {
		return env, err
	}
	env.Ciphertext = append([]byte(nil), ct...)
	if err := r.fill(env.Tag[:]); err != nil {
		return env, err
	}
	if r.remaining() != 0 {
		return env, fmt.Errorf("%d trailing bytes", r.remaining())
	}
	return env, nil
}

func appendShortString(out []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: id of %d bytes", domain.ErrMalformedEnvelope, len(s))
	}
	out = append(out, byte(len(s)))
	return append(out, s...), nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) fill(dst []byte) error {
	b, err := r.next(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) str() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
