package security

import (
	"crypto/hmac"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// VerifySweepSecret checks a presented sweep-trigger secret against the
// configured one. The configured value may be a bcrypt hash of the secret
// (so a leaked environment dump does not leak the secret itself); plain
// values are compared in constant time. An empty configuration never
// matches: the sweep endpoint stays closed until a secret is set.
func VerifySweepSecret(configured, presented string) bool {
	configured = strings.TrimSpace(configured)
	if configured == "" || presented == "" {
		return false
	}

	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}

	return hmac.Equal([]byte(configured), []byte(presented))
}

// HashSweepSecret produces a bcrypt hash suitable for CRON_SECRET.
func HashSweepSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
