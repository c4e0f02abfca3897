package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the key-addressable TTL store backing holds, presence sets, and
// rate counters. SetIfAbsent is the primitive that makes seat selection
// race-free: Redis executes SETNX atomically, so exactly one of two racing
// callers wins.
type Store struct {
	client *redis.Client
}

// NewStore creates a hold store on the given Redis client
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Lua script for atomic counter increment with TTL (re)set. Post-increment:
// the value is bumped first, then callers compare against the limit, so the
// first request over the threshold is the one rejected.
var luaIncrementAndExpire = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// SetIfAbsent stores value under key iff the key does not exist.
// Returns true when this caller won the key.
func (s *Store) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Get returns the value under key, or ("", false, nil) when absent
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

// SetWithTTL stores value under key, overwriting any previous value
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key. -1 means no expiry (an orphan
// for hold keys), -2 means the key is gone.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	return ttl, nil
}

// ScanByPrefix enumerates keys under prefix using cursor SCAN; no ordering
// guarantees, safe against concurrent writes.
func (s *Store) ScanByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	pattern := prefix + "*"

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// SetAdd adds a member to the set under key
func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// SetRemove removes a member from the set under key
func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

// SetCardinality returns the size of the set under key
func (s *Store) SetCardinality(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", key, err)
	}
	return n, nil
}

// SetMembers returns all members of the set under key
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// IncrementAndExpire atomically bumps the counter under key and sets its
// TTL on first use. Returns the new value and the remaining window.
func (s *Store) IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	result, err := luaIncrementAndExpire.Run(ctx, s.client, []string{key}, int(ttl.Seconds())).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment %s: %w", key, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected result format from increment script")
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("invalid counter value in increment result")
	}
	ttlSeconds, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("invalid ttl value in increment result")
	}

	return count, time.Duration(ttlSeconds) * time.Second, nil
}

// Publish sends a message on the named channel
func (s *Store) Publish(ctx context.Context, channel, message string) error {
	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription on the given channel patterns. The caller
// owns the returned PubSub and must Close it.
func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.client.PSubscribe(ctx, channels...)
}

// PreloadScripts loads the Lua scripts into Redis at startup so the first
// request does not pay the load round trip.
func (s *Store) PreloadScripts(ctx context.Context) error {
	if _, err := luaIncrementAndExpire.Load(ctx, s.client).Result(); err != nil {
		return fmt.Errorf("failed to load increment script: %w", err)
	}
	return nil
}

// Ping checks store liveness
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
