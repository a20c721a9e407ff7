// Package middleware provides HTTP middleware for the featflip server:
// bearer-token authentication backed by bcrypt API key hashes, per-IP rate
// limiting of failed attempts, and request logging.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyHashCost = bcrypt.DefaultCost

// ErrUnknownAPIKey is returned when a presented key matches none of the
// configured hashes.
var ErrUnknownAPIKey = errors.New("unknown api key")

// HashAPIKey returns a salted bcrypt hash for an API key.
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), apiKeyHashCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// APIKeyMatchesHash compares an API key against a stored bcrypt hash.
func APIKeyMatchesHash(expectedHash, apiKey string) bool {
	return bcrypt.CompareHashAndPassword([]byte(expectedHash), []byte(apiKey)) == nil
}

// StaticKeyValidator validates bearer tokens against a fixed set of bcrypt
// hashes, typically loaded from the API_KEY_HASHES environment variable.
type StaticKeyValidator struct {
	hashes []string
}

// NewStaticKeyValidator creates a validator over the given bcrypt hashes.
func NewStaticKeyValidator(hashes []string) *StaticKeyValidator {
	return &StaticKeyValidator{hashes: hashes}
}

// ValidateToken checks the token against every configured hash and returns an
// identifier for the matched key. Tokens of the form "keyID.secret" are
// identified by their keyID prefix; opaque tokens by the matched hash index.
func (v *StaticKeyValidator) ValidateToken(_ context.Context, token string) (string, error) {
	for i, hash := range v.hashes {
		if APIKeyMatchesHash(hash, token) {
			if keyID, _, ok := strings.Cut(token, "."); ok && keyID != "" {
				return keyID, nil
			}
			return fmt.Sprintf("key-%d", i), nil
		}
	}
	return "", ErrUnknownAPIKey
}
