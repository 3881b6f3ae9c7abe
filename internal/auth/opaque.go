package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/vertyll/fastprod-auth/internal/ids"
)

// Opaque credentials (refresh, reset and verification tokens) share one wire
// shape: "<record id>.<random secret>". The store keeps only sha256(secret),
// so a leaked database does not leak usable tokens.

func newOpaqueToken() (value, id, hash string, err error) {
	secretBytes := make([]byte, 32)
	if _, err = rand.Read(secretBytes); err != nil {
		return "", "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	id = ids.New()
	sum := sha256.Sum256([]byte(secret))
	return id + "." + secret, id, hex.EncodeToString(sum[:]), nil
}

func splitOpaqueToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid opaque token format")
	}
	return parts[0], parts[1], nil
}

func opaqueHashMatches(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(actual) != len(expectedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1
}
