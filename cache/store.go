package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// ErrMiss is returned by Get when the key is absent. Callers fall through to
// the source of truth; a miss is never an error condition upstream.
var ErrMiss = errors.New("cache: miss")

// Store is the cache contract the core depends on: get, set-with-TTL and
// delete-by-key. Implementations are allowed to fail; callers must treat the
// store as unreliable.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisStore implements Store on a redis client. All calls run through a
// circuit breaker: when redis misbehaves the breaker opens, reads degrade to
// misses and evictions become no-ops instead of piling up timeouts.
type RedisStore struct {
	rdb *redis.Client
	cb  *gobreaker.CircuitBreaker
}

// NewRedisStore creates a RedisStore around an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "redis-cache",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
		// a miss is a healthy response, not a redis failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
	})
	return &RedisStore{rdb: rdb, cb: cb}
}

// Get returns the cached value for key, or ErrMiss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.cb.Execute(func() (interface{}, error) {
		v, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return v, err
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.rdb.Set(ctx, key, value, ttl).Err()
	})
	return err
}

// Delete evicts the given keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.rdb.Del(ctx, keys...).Err()
	})
	return err
}
