package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const apiKeyPrefix = "sk_"

// GenerateAPICredentials mints a fresh API key and secret pair for a subsite.
// The key is prefixed so it can be recognised in logs and configs; the secret
// is only ever shown once at creation time.
func GenerateAPICredentials() (key, secret string, err error) {
	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("auth: generate api key: %w", err)
	}
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("auth: generate api secret: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(keyBytes), hex.EncodeToString(secretBytes), nil
}
