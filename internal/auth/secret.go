package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SecretCheck guards the ingestion endpoint with a shared secret.
// When a bcrypt hash is configured it takes precedence over the plain value.
type SecretCheck struct {
	plain []byte
	hash  []byte
}

func NewSecretCheck(plain, hash string) *SecretCheck {
	return &SecretCheck{
		plain: []byte(strings.TrimSpace(plain)),
		hash:  []byte(strings.TrimSpace(hash)),
	}
}

func (c *SecretCheck) Configured() bool {
	return c != nil && (len(c.plain) > 0 || len(c.hash) > 0)
}

func (c *SecretCheck) Matches(candidate string) bool {
	if !c.Configured() || candidate == "" {
		return false
	}
	if len(c.hash) > 0 {
		return bcrypt.CompareHashAndPassword(c.hash, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(c.plain, []byte(candidate)) == 1
}

// HashSecret produces a value suitable for ATLAS_INGEST_SECRET_HASH.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
