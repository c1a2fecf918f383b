package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Key format: qs_{env}_{id}_{secret}
// - id: 12 hex chars, stored in clear as the lookup prefix
// - secret: 32 hex chars, stored only as a bcrypt hash
// Tokens are hex so they can never contain the underscore separator.
func GenerateServiceKey(env string) (id string, rawKey string, secretHash []byte, err error) {
	id, secret := randomToken(12), randomToken(32)
	if id == "" || secret == "" {
		return "", "", nil, fmt.Errorf("failed to generate token")
	}
	rawKey = fmt.Sprintf("qs_%s_%s_%s", env, id, secret)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", nil, err
	}
	return id, rawKey, hash, nil
}

// ParseServiceKey splits a raw key into env, id, secret.
func ParseServiceKey(raw string) (env string, id string, secret string, ok bool) {
	parts := strings.Split(raw, "_")
	if len(parts) != 4 || parts[0] != "qs" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

func randomToken(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)[:n]
}
