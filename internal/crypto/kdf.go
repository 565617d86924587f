package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF expands ikm into size bytes with HKDF-SHA256. A nil salt is treated
// as 32 zero bytes per RFC 5869.
func HKDF(ikm, salt []byte, info string, size int) ([]byte, error) {
	if salt == nil {
		salt = make([]byte, sha256.Size)
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}

// HMAC returns HMAC-SHA256(key, data).
func HMAC(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}
