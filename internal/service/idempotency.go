package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency records which booking an Idempotency-Key produced.
//
// Begin claims key and returns "" when the caller should go ahead, the
// stored reference when the key already completed, or an ErrConflict error
// while another request holds it. Complete and Abort settle a claim.
type Idempotency interface {
	Begin(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key, reference string) error
	Abort(ctx context.Context, key string) error
}

const inFlight = "__pending__"

// idempotencyScope ties a client key to the caller so two users cannot
// collide on the same value.
func idempotencyScope(actor Actor, key string) string {
	sum := sha256.Sum256([]byte(key))
	owner := "guest"
	if actor.UserID != 0 {
		owner = strconv.FormatUint(actor.UserID, 10)
	}
	return owner + ":" + hex.EncodeToString(sum[:16])
}

// RedisIdempotency stores claims as plain keys written with SETNX.
type RedisIdempotency struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotency(rdb *redis.Client, prefix string, ttl time.Duration) *RedisIdempotency {
	if prefix == "" {
		prefix = "cinema:idem"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotency{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisIdempotency) key(k string) string { return r.prefix + ":" + k }

func (r *RedisIdempotency) Begin(ctx context.Context, key string) (string, error) {
	for i := 0; i < 2; i++ {
		ok, err := r.rdb.SetNX(ctx, r.key(key), inFlight, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("idempotency claim: %w", err)
		}
		if ok {
			return "", nil
		}
		val, err := r.rdb.Get(ctx, r.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between the two calls
		}
		if err != nil {
			return "", fmt.Errorf("idempotency lookup: %w", err)
		}
		if val == inFlight {
			return "", newError(KindConflict, "a request with this Idempotency-Key is still in progress", nil)
		}
		return val, nil
	}
	return "", newError(KindConflict, "a request with this Idempotency-Key is still in progress", nil)
}

func (r *RedisIdempotency) Complete(ctx context.Context, key, reference string) error {
	return r.rdb.Set(ctx, r.key(key), reference, r.ttl).Err()
}

func (r *RedisIdempotency) Abort(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}
