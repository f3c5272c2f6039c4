package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL      = 5 * time.Minute
	redisKeyPrefix  = "guard:"
	releaseDeadline = 3 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares held keys between instances. The TTL frees a key whose
// holder crashed.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.New().String()

	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire guard %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be canceled.
			rctx, cancel := context.WithTimeout(context.Background(), releaseDeadline)
			defer cancel()
			if err := releaseScript.Run(rctx, g.client, []string{redisKey}, token).Err(); err != nil {
				log.Warnf("[Guard] Failed to release %s: %v", key, err)
			}
		})
	}, nil
}
