// Package redisstore backs the shared revocation set with Redis so family
// revocations propagate to every replica inside one access-token lifetime.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vertyll/fastprod-auth/internal/auth"
)

const revocationKeyPrefix = "auth:revoked:"

// Revocations implements auth.RevocationSet on a Redis client. Entries carry
// a TTL equal to the remaining access-token lifetime, so the set stays small
// without a sweeper.
type Revocations struct {
	client *redis.Client
	now    func() time.Time
}

var _ auth.RevocationSet = (*Revocations)(nil)

// NewRevocations wraps an existing client.
func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{client: client, now: time.Now}
}

// Open dials Redis and verifies connectivity before handing back the set.
func Open(ctx context.Context, addr, password string, db int) (*Revocations, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRevocations(client), nil
}

// Close releases the underlying client.
func (r *Revocations) Close() error { return r.client.Close() }

// Revoke marks a family revoked until the deadline. A deadline in the past
// is a no-op since no live access token can still reference the family.
func (r *Revocations) Revoke(ctx context.Context, familyID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revocationKeyPrefix+familyID, "1", ttl).Err()
}

// IsRevoked reports whether the family is in the set. A missing key means
// not revoked; any other Redis error is surfaced so the caller can fail
// closed.
func (r *Revocations) IsRevoked(ctx context.Context, familyID string) (bool, error) {
	err := r.client.Get(ctx, revocationKeyPrefix+familyID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
