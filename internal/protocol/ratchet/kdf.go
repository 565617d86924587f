package ratchet

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"unhidra/internal/crypto"
	"unhidra/internal/domain"
)

const (
	infoRoot    = "unhidra/ratchet/root"
	infoMessage = "unhidra/ratchet/msg"

	headerLen = 1 + 32 + 4 + 4
)

var (
	chainMessageConst = []byte{0x01}
	chainNextConst    = []byte{0x02}
)

// kdfRK mixes a DH output into the root key and returns the next root key
// and a fresh chain key.
func kdfRK(rk []byte, dh [32]byte) (newRK, ck []byte, err error) {
	out, err := crypto.HKDF(dh[:], rk, infoRoot, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("root kdf: %w", err)
	}
	return out[:32:32], out[32:], nil
}

// kdfCK advances a chain key one step. The returned message key and next
// chain key are independent HMAC outputs, so the old chain key cannot be
// recovered from either.
func kdfCK(ck []byte) (mk, nextCK []byte) {
	return crypto.HMAC(ck, chainMessageConst), crypto.HMAC(ck, chainNextConst)
}

// seal encrypts with XChaCha20-Poly1305 under a key expanded from mk.
func seal(mk []byte, nonce [24]byte, plaintext, ad []byte) ([]byte, error) {
	key, err := crypto.HKDF(mk, nil, infoMessage, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

func open(mk []byte, nonce [24]byte, ciphertext, ad []byte) ([]byte, error) {
	key, err := crypto.HKDF(mk, nil, infoMessage, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, domain.ErrAuthenticationFailed
	}
	return pt, nil
}

// associatedData is the session AD followed by the encoded header.
func associatedData(sessionAD []byte, version uint8, h domain.RatchetHeader) []byte {
	out := make([]byte, 0, len(sessionAD)+headerLen)
	out = append(out, sessionAD...)
	out = append(out, version)
	out = append(out, h.RatchetKey[:]...)
	out = binary.BigEndian.AppendUint32(out, h.PreviousChainLength)
	out = binary.BigEndian.AppendUint32(out, h.MessageNumber)
	return out
}
