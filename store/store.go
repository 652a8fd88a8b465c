package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis connection failures. Callers check it with
// errors.Is and decide whether to fail open or closed.
var ErrUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var compareAndDeleteLua = redis.NewScript(compareAndDeleteScript)

// Store is a namespaced key-value adapter over a Redis client. All methods
// are safe for concurrent use.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// New creates a Store with the given key namespace prefix. timeout bounds
// every round-trip; zero disables the bound.
func New(client redis.UniversalClient, prefix string, timeout time.Duration) *Store {
	return &Store{
		redis:   client,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// SetWithTTL stores value under key with the given TTL.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.redis.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	val, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Increment bumps the counter at key and sets the window TTL on the first
// hit, establishing a fixed window that expires as a whole.
func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	count, err := s.redis.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, s.key(key), window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

// CompareAndDelete atomically deletes key only if it currently holds value.
// It returns true when this caller performed the deletion. Under concurrent
// calls for the same key exactly one caller wins.
func (s *Store) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	deleted, err := compareAndDeleteLua.Run(ctx, s.redis, []string{s.key(key)}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted == 1, nil
}

// ScanPrefix returns all keys under the given sub-prefix with the store
// namespace stripped. This is an O(n) scan; do not call it on hot paths.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	pattern := s.key(prefix) + "*"
	strip := len(s.prefix) + 1

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, k := range batch {
			keys = append(keys, k[strip:])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// DeleteByPrefix removes every key under the given sub-prefix and returns
// how many were deleted.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ScanPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	deleted, err := s.redis.Del(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(deleted), nil
}

// TTL returns the remaining lifetime of key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ttl, err := s.redis.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ttl, nil
}

// Ping returns a point-in-time availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
