package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// API keys have the form ak_<key id>.<secret>. The key id is stored in
// plaintext and indexed for lookup; only a bcrypt hash of the secret is
// persisted, so a leaked database cannot be replayed as credentials.
const apiKeyPrefix = "ak_"

// generateAPIKey returns the full key handed to the agent once, plus the
// key id and secret parts for storage.
func generateAPIKey() (key, keyID, secret string, err error) {
	idBytes := make([]byte, 8)
	if _, err = rand.Read(idBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate key id: %w", err)
	}
	secretBytes := make([]byte, 32)
	if _, err = rand.Read(secretBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate key secret: %w", err)
	}

	keyID = hex.EncodeToString(idBytes)
	secret = base64.RawURLEncoding.EncodeToString(secretBytes)
	key = apiKeyPrefix + keyID + "." + secret
	return key, keyID, secret, nil
}

// splitAPIKey parses a presented key into its id and secret parts.
func splitAPIKey(key string) (keyID, secret string, ok bool) {
	rest, found := strings.CutPrefix(key, apiKeyPrefix)
	if !found {
		return "", "", false
	}
	keyID, secret, found = strings.Cut(rest, ".")
	if !found || keyID == "" || secret == "" {
		return "", "", false
	}
	return keyID, secret, true
}
