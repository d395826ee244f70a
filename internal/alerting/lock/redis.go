package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLock is a single-instance Redis lock (SET NX PX plus a token-checked release)
// for hosts that share the rule table over a network mount.
type RedisLock struct {
	redis      *redis.Client
	key        string
	ttl        time.Duration
	retryDelay time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{redis: rdb, key: key, ttl: ttl, retryDelay: 500 * time.Millisecond}
}

func (l *RedisLock) Lock(ctx context.Context) (func() error, error) {
	if l.redis == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	token := uuid.NewString()
	for {
		ok, err := l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, l.key, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock %s: %w", l.key, err)
		}
		if ok {
			log.Debug().Str("key", l.key).Dur("ttl", l.ttl).Msg("redis lock acquired")
			return func() error { return l.release(token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, l.key, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *RedisLock) release(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.redis, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release redis lock %s: %w", l.key, err)
	}
	if n == 0 {
		log.Warn().Str("key", l.key).Msg("redis lock expired before release")
	}
	return nil
}
