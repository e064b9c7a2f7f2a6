package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores derived per-provider views. Every field of a provider lives in
// one hash so a single DEL invalidates the whole view after a write.
//
// Readers take Version before loading from the store and hand it back to Set.
// Invalidate bumps the version, so a view computed from data older than the
// last write is never stored.
type Cache interface {
	Get(ctx context.Context, providerID uuid.UUID, field string) ([]byte, bool, error)
	Version(ctx context.Context, providerID uuid.UUID) (int64, error)
	Set(ctx context.Context, providerID uuid.UUID, version int64, field string, data []byte) (bool, error)
	Invalidate(ctx context.Context, providerID uuid.UUID) error
}

// KEYS[1] view hash, KEYS[2] version. ARGV: version, field, data, ttl ms.
var setIfCurrentScript = redis.NewScript(`
local v = redis.call("GET", KEYS[2]) or "0"
if v ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// KEYS[1] view hash, KEYS[2] version. ARGV: version ttl ms.
var invalidateScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
local v = redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return v
`)

// versionTTLFactor keeps the version key alive well past any view it guards.
const versionTTLFactor = 24

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func availabilityKey(providerID uuid.UUID) string {
	return fmt.Sprintf("availability:%s", providerID)
}

func availabilityVersionKey(providerID uuid.UUID) string {
	return fmt.Sprintf("availability:%s:version", providerID)
}

func (c *redisCache) Get(ctx context.Context, providerID uuid.UUID, field string) ([]byte, bool, error) {
	data, err := c.client.HGet(ctx, availabilityKey(providerID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read availability cache: %w", err)
	}
	return data, true, nil
}

func (c *redisCache) Version(ctx context.Context, providerID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, availabilityVersionKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read availability version: %w", err)
	}
	return v, nil
}

// Set stores the field only while the provider's version still equals
// version. It reports whether the write happened.
func (c *redisCache) Set(ctx context.Context, providerID uuid.UUID, version int64, field string, data []byte) (bool, error) {
	keys := []string{availabilityKey(providerID), availabilityVersionKey(providerID)}
	stored, err := setIfCurrentScript.Run(ctx, c.client, keys,
		version, field, data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("write availability cache: %w", err)
	}
	return stored == 1, nil
}

func (c *redisCache) Invalidate(ctx context.Context, providerID uuid.UUID) error {
	keys := []string{availabilityKey(providerID), availabilityVersionKey(providerID)}
	ttl := (c.ttl * versionTTLFactor).Milliseconds()
	if err := invalidateScript.Run(ctx, c.client, keys, ttl).Err(); err != nil {
		return fmt.Errorf("invalidate availability cache: %w", err)
	}
	return nil
}
