package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationSet tracks token families whose access tokens must be rejected
// before their natural expiry. Entries carry a deadline equal to the latest
// possible access-token expiry in the family, so the set stays bounded by the
// access TTL regardless of login volume.
type RevocationSet interface {
	Revoke(ctx context.Context, familyID string, until time.Time) error
	IsRevoked(ctx context.Context, familyID string) (bool, error)
}

// MemoryRevocations is the single-process implementation. Multi-instance
// deployments share the set through redisstore.Revocations instead.
type MemoryRevocations struct {
	mu        sync.RWMutex
	deadlines map[string]time.Time
	now       func() time.Time
}

// NewMemoryRevocations builds an empty in-process set.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		deadlines: make(map[string]time.Time),
		now:       time.Now,
	}
}

// WithRevocationClock overrides the time source for tests.
func (m *MemoryRevocations) WithRevocationClock(fn func() time.Time) *MemoryRevocations {
	if fn != nil {
		m.now = fn
	}
	return m
}

// Revoke records the family until the given deadline, evicting expired
// entries while it holds the write lock.
func (m *MemoryRevocations) Revoke(_ context.Context, familyID string, until time.Time) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for fam, deadline := range m.deadlines {
		if now.After(deadline) {
			delete(m.deadlines, fam)
		}
	}
	if until.After(now) {
		m.deadlines[familyID] = until
	}
	return nil
}

// IsRevoked reports whether the family is currently revoked. Reads take the
// shared lock only, so verification of unrelated families never waits on a
// writer beyond the map insert itself.
func (m *MemoryRevocations) IsRevoked(_ context.Context, familyID string) (bool, error) {
	m.mu.RLock()
	deadline, ok := m.deadlines[familyID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return m.now().Before(deadline), nil
}
