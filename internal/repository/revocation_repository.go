package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout in Redis. The version key holds the per-user token
// generation counter; blacklist keys are per-jti sentinels that expire
// on their own.
const (
	generationKeyPrefix = "jwt:version:"
	denylistKeyPrefix   = "jwt:blacklist:"
)

// RevocationRepository tracks which issued tokens are no longer valid:
// a monotonically increasing generation counter per user and a
// short-lived denylist of individual token IDs. Every method enforces a
// call timeout; errors are propagated so the session layer can fail
// closed.
type RevocationRepository struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRevocationRepository constructs a revocation repository.
func NewRevocationRepository(client *redis.Client, timeout time.Duration) *RevocationRepository {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RevocationRepository{client: client, timeout: timeout}
}

func generationKey(userID string) string {
	return generationKeyPrefix + userID
}

func denylistKey(jti string) string {
	return denylistKeyPrefix + jti
}

// CurrentGeneration returns the stored generation for the user, or 1
// when no counter exists yet. It never returns 0 or a negative value.
func (r *RevocationRepository) CurrentGeneration(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.Get(ctx, generationKey(userID)).Result()
	if err == redis.Nil {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("revocation: read generation for %s: %w", userID, err)
	}

	gen, err := strconv.Atoi(raw)
	if err != nil || gen < 1 {
		return 0, fmt.Errorf("revocation: corrupt generation value %q for %s", raw, userID)
	}
	return gen, nil
}

// BumpGeneration atomically increments the user's generation counter,
// invalidating every token stamped with a lower value. An absent
// counter is seeded at 1 first, so the first bump yields 2.
func (r *RevocationRepository) BumpGeneration(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := generationKey(userID)
	if err := r.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return 0, fmt.Errorf("revocation: seed generation for %s: %w", userID, err)
	}

	gen, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("revocation: bump generation for %s: %w", userID, err)
	}
	return int(gen), nil
}

// Denylist records the jti as revoked for the given TTL. Callers cap
// the TTL at the signing lifetime of the token kind; an already-expired
// token needs no entry.
func (r *RevocationRepository) Denylist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, denylistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation: denylist %s: %w", jti, err)
	}
	return nil
}

// IsDenylisted reports whether the jti has been revoked.
func (r *RevocationRepository) IsDenylisted(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.client.Exists(ctx, denylistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: check denylist %s: %w", jti, err)
	}
	return n > 0, nil
}
