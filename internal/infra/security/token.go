package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint calculates a SHA-256 hex digest of the provided value. Used to
// embed user-agent fingerprints in token claims without carrying the raw string.
func Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
