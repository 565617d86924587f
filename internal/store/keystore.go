package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"unhidra/internal/crypto"
)

// keystoreFormatVersion is the newest sealed-blob layout this build reads.
const keystoreFormatVersion = 2

// errWrongPassphrase is returned when the passphrase is incorrect or the
// blob was modified.
var errWrongPassphrase = errors.New("wrong passphrase or corrupted keystore")

// sealedBlob is the on-disk JSON structure holding the ciphertext and the
// scrypt parameters needed to re-derive its key.
type sealedBlob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

type scryptParams struct{ N, R, P int }

// Tunables for scrypt key derivation.
var defaultScrypt = scryptParams{N: 1 << 15, R: 8, P: 1}

// sealWithPassphrase derives a key from passphrase and seals raw into a
// JSON blob. The salt and version are bound as associated data.
func sealWithPassphrase(passphrase string, raw []byte, params scryptParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	bl := sealedBlob{
		V:     keystoreFormatVersion,
		Salt:  salt,
		N:     params.N,
		R:     params.R,
		P:     params.P,
		Nonce: nonce,
	}
	bl.Cipher = aead.Seal(nil, nonce, raw, blobAD(bl))
	return json.Marshal(bl)
}

// openWithPassphrase opens a blob produced by sealWithPassphrase.
func openWithPassphrase(passphrase string, b []byte) ([]byte, error) {
	var bl sealedBlob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, fmt.Errorf("decode keystore: %w", err)
	}
	if bl.V != keystoreFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", bl.V)
	}
	if len(bl.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, errWrongPassphrase
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, bl.Nonce, bl.Cipher, blobAD(bl))
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}

func blobAD(bl sealedBlob) []byte {
	return append([]byte{byte(bl.V)}, bl.Salt...)
}
