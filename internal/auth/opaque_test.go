package auth

import (
	"strings"
	"testing"
)

func TestOpaqueTokenRoundTrip(t *testing.T) {
	value, id, hash, err := newOpaqueToken()
	if err != nil {
		t.Fatalf("newOpaqueToken: %v", err)
	}
	gotID, secret, err := splitOpaqueToken(value)
	if err != nil {
		t.Fatalf("splitOpaqueToken: %v", err)
	}
	if gotID != id {
		t.Fatalf("id %q != %q", gotID, id)
	}
	if !opaqueHashMatches(hash, secret) {
		t.Fatal("hash mismatch for own secret")
	}
}

func TestOpaqueTokenTamperedSecret(t *testing.T) {
	_, _, hash, err := newOpaqueToken()
	if err != nil {
		t.Fatalf("newOpaqueToken: %v", err)
	}
	other, _, _, err := newOpaqueToken()
	if err != nil {
		t.Fatalf("newOpaqueToken: %v", err)
	}
	_, foreignSecret, err := splitOpaqueToken(other)
	if err != nil {
		t.Fatalf("splitOpaqueToken: %v", err)
	}
	if opaqueHashMatches(hash, foreignSecret) {
		t.Fatal("foreign secret matched")
	}
}

func TestSplitOpaqueTokenMalformed(t *testing.T) {
	for _, value := range []string{"", "nodot", ".leading", "trailing.", "a.b.c"} {
		if _, _, err := splitOpaqueToken(value); err == nil {
			t.Fatalf("accepted malformed value %q", value)
		}
	}
}

func TestOpaqueTokensUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		value, _, _, err := newOpaqueToken()
		if err != nil {
			t.Fatalf("newOpaqueToken: %v", err)
		}
		if _, dup := seen[value]; dup {
			t.Fatal("duplicate token value")
		}
		seen[value] = struct{}{}
		if strings.Count(value, ".") != 1 {
			t.Fatalf("unexpected shape %q", value)
		}
	}
}
