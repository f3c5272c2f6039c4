package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ArtFox/internal/pkg/env"
)

// DefaultLimiterDB keeps limiter counters apart from guard keys in DB 0.
const DefaultLimiterDB = 1

// NewFiberStorage returns a Redis backed fiber.Storage on the same server as
// the shared client, so middleware state like limiter counters is shared by
// every instance.
func NewFiberStorage() fiber.Storage {
	host, port, password := connectionSettings()
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("CACHE_LIMITER_DB", DefaultLimiterDB),
		Reset:    false,
	})
}

func connectionSettings() (string, int, string) {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	if v, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379")); err == nil {
		port = v
	}
	password := env.GetEnv("CACHE_PASSWORD", "")

	// prefer the settings of the live client
	if client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}
	return host, port, password
}
