package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ArtFox/internal/pkg/env"
)

var client *redis.Client

// SetupCache connects to the Redis compatible cache used for cross-instance
// coordination.
func SetupCache(ctx context.Context) (*redis.Client, error) {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	c := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	pong, err := c.Ping(pingCtx).Result()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("could not connect to cache at %s:%s: %w", host, port, err)
	}
	log.Infof("[Cache] Successfully connected to cache: %s", pong)

	client = c
	return c, nil
}

// GetClient returns the client created by SetupCache, or nil.
func GetClient() *redis.Client {
	return client
}

// Close closes the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
