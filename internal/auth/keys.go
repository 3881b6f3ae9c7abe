package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Keyring holds HS256 signing material. The first configured key signs new
// tokens; every key still verifies, which is what lets deployments rotate the
// signing key without invalidating tokens minted under the previous one.
type Keyring struct {
	active SigningKey
	byKid  map[string][]byte
}

// SigningKey is one named HMAC secret.
type SigningKey struct {
	Kid    string
	Secret []byte
}

// ParseKeyring parses "kid1:base64secret,kid2:base64secret". The first entry
// becomes the active signing key.
func ParseKeyring(spec string) (*Keyring, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("auth: no signing keys configured")
	}
	ring := &Keyring{byKid: make(map[string][]byte)}
	for i, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kid, raw, ok := strings.Cut(entry, ":")
		kid = strings.TrimSpace(kid)
		if !ok || kid == "" {
			return nil, fmt.Errorf("auth: malformed key entry %d", i)
		}
		secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("auth: decode key %q: %w", kid, err)
		}
		if len(secret) < 32 {
			return nil, fmt.Errorf("auth: key %q shorter than 32 bytes", kid)
		}
		if _, dup := ring.byKid[kid]; dup {
			return nil, fmt.Errorf("auth: duplicate key id %q", kid)
		}
		ring.byKid[kid] = secret
		if ring.active.Kid == "" {
			ring.active = SigningKey{Kid: kid, Secret: secret}
		}
	}
	if ring.active.Kid == "" {
		return nil, errors.New("auth: no signing keys configured")
	}
	return ring, nil
}

// NewKeyring builds a ring from explicit keys; the first one signs.
func NewKeyring(keys ...SigningKey) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, errors.New("auth: no signing keys configured")
	}
	ring := &Keyring{byKid: make(map[string][]byte, len(keys))}
	for _, k := range keys {
		if k.Kid == "" || len(k.Secret) == 0 {
			return nil, errors.New("auth: signing key requires kid and secret")
		}
		if _, dup := ring.byKid[k.Kid]; dup {
			return nil, fmt.Errorf("auth: duplicate key id %q", k.Kid)
		}
		ring.byKid[k.Kid] = k.Secret
	}
	ring.active = keys[0]
	return ring, nil
}

// Active returns the key used to sign new tokens.
func (k *Keyring) Active() SigningKey { return k.active }

// Keyfunc selects the verification secret by the token's kid header. Tokens
// signed with anything but HS256 or an unknown kid fail verification.
func (k *Keyring) Keyfunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, ErrTokenInvalid
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		// Tokens minted before key ids were introduced verify against the
		// active key only.
		return k.active.Secret, nil
	}
	secret, ok := k.byKid[kid]
	if !ok {
		return nil, ErrTokenInvalid
	}
	return secret, nil
}
