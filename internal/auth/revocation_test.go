package auth

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRevocations(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	set := NewMemoryRevocations().WithRevocationClock(clock)
	ctx := context.Background()

	revoked, err := set.IsRevoked(ctx, "fam-1")
	if err != nil || revoked {
		t.Fatalf("fresh set: revoked=%v err=%v", revoked, err)
	}

	if err := set.Revoke(ctx, "fam-1", now.Add(15*time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err = set.IsRevoked(ctx, "fam-1")
	if err != nil || !revoked {
		t.Fatalf("after revoke: revoked=%v err=%v", revoked, err)
	}

	now = now.Add(16 * time.Minute)
	revoked, err = set.IsRevoked(ctx, "fam-1")
	if err != nil || revoked {
		t.Fatalf("after deadline: revoked=%v err=%v", revoked, err)
	}
}

func TestMemoryRevocationsEviction(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	set := NewMemoryRevocations().WithRevocationClock(clock)
	ctx := context.Background()

	for _, fam := range []string{"a", "b", "c"} {
		if err := set.Revoke(ctx, fam, now.Add(time.Minute)); err != nil {
			t.Fatalf("Revoke %s: %v", fam, err)
		}
	}
	now = now.Add(2 * time.Minute)
	// The next write sweeps lapsed entries.
	if err := set.Revoke(ctx, "d", now.Add(time.Minute)); err != nil {
		t.Fatalf("Revoke d: %v", err)
	}
	set.mu.RLock()
	n := len(set.deadlines)
	set.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected 1 live entry after sweep, got %d", n)
	}
}
