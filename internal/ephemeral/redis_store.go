package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry sets the expiry only on the first increment. A counter that
// somehow lost its TTL gets one back rather than living forever.
var incrWithExpiry = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore is the shared Store used by every API and worker replica.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("ephemeral put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ephemeral get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ephemeral delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, ErrInvalidTTL
	}
	n, err := incrWithExpiry.Run(ctx, s.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("ephemeral incr %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.rdb, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("ephemeral compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}
