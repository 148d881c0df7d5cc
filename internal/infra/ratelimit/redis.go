package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the distributed backend. INCR is atomic on the server, so
// concurrent submissions for one key across any number of instances are
// counted exactly; the expiry is set when the key is first created, fixing
// the window at the first submission.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "contact_form",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	full := s.prefix + ":" + key

	count, err := s.rdb.Incr(ctx, full).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := s.rdb.Expire(ctx, full, window).Err(); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}
