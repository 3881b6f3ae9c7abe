package auth

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseKeyring(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("s"), 32))
	ring, err := ParseKeyring("k1:" + secret + ", k2:" + secret)
	if err != nil {
		t.Fatalf("ParseKeyring: %v", err)
	}
	if ring.Active().Kid != "k1" {
		t.Fatalf("active kid %q, first entry should sign", ring.Active().Kid)
	}
}

func TestParseKeyringErrors(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	ok := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("s"), 32))
	cases := map[string]string{
		"empty":     "",
		"no kid":    ":" + ok,
		"bad b64":   "k1:not-base64!!",
		"short key": "k1:" + short,
		"dup kid":   "k1:" + ok + ",k1:" + ok,
	}
	for name, spec := range cases {
		if _, err := ParseKeyring(spec); err == nil {
			t.Fatalf("%s: expected error for %q", name, spec)
		}
	}
}

func TestKeyfuncSelectsByKid(t *testing.T) {
	ring, err := NewKeyring(
		SigningKey{Kid: "new", Secret: bytes.Repeat([]byte("n"), 32)},
		SigningKey{Kid: "old", Secret: bytes.Repeat([]byte("o"), 32)},
	)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	tok := jwt.New(jwt.SigningMethodHS256)
	tok.Header["kid"] = "old"
	secret, err := ring.Keyfunc(tok)
	if err != nil {
		t.Fatalf("Keyfunc: %v", err)
	}
	if !bytes.Equal(secret.([]byte), bytes.Repeat([]byte("o"), 32)) {
		t.Fatal("wrong secret selected")
	}

	tok.Header["kid"] = "unknown"
	if _, err := ring.Keyfunc(tok); err == nil {
		t.Fatal("unknown kid accepted")
	}

	rsaTok := jwt.New(jwt.SigningMethodRS256)
	if _, err := ring.Keyfunc(rsaTok); err == nil {
		t.Fatal("non-HS256 method accepted")
	}
}

func TestKeyfuncMissingKidUsesActive(t *testing.T) {
	ring, err := NewKeyring(SigningKey{Kid: "k1", Secret: bytes.Repeat([]byte("a"), 32)})
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	tok := jwt.New(jwt.SigningMethodHS256)
	delete(tok.Header, "kid")
	secret, err := ring.Keyfunc(tok)
	if err != nil {
		t.Fatalf("Keyfunc: %v", err)
	}
	if !bytes.Equal(secret.([]byte), ring.Active().Secret) {
		t.Fatal("expected active secret for kid-less token")
	}
}
