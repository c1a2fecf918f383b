package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey generates a SHA-256 hex digest of a string, used to derive stable
// document ids for events that arrive without a provider event id.
func HashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
