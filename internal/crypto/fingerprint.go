package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"unhidra/internal/domain"
)

// Fingerprint returns a short, grouped hex fingerprint of an identity.
//
// It hashes both public keys with SHA-256 and keeps 10 bytes (20 hex chars),
// shown as five groups of four.
func Fingerprint(id domain.IdentityPublic) domain.Fingerprint {
	h := sha256.New()
	h.Write(id.XPub[:])
	h.Write(id.EdPub[:])
	sum := hex.EncodeToString(h.Sum(nil)[:10])

	groups := make([]string, 0, len(sum)/4)
	for i := 0; i < len(sum); i += 4 {
		groups = append(groups, sum[i:i+4])
	}
	return domain.Fingerprint(strings.Join(groups, " "))
}
