package cache

import (
	"context"
	"log"
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pitlane-app/pitlane/internal/pkg/config"
)

// Redis databases per concern. Sessions and rate-limit counters never share keys.
const (
	DatabaseDefault   = 0
	DatabaseSessions  = 1
	DatabaseRateLimit = 2
)

var (
	client *goredis.Client
	ctx    = context.Background()
)

// SetupCache initializes the shared Redis client.
func SetupCache(cfg config.CacheConfig) {
	client = goredis.NewClient(&goredis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       DatabaseDefault,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// NewStorage returns a fiber storage backed by the same Redis server on the
// given database number. Used by the session store and the rate limiters.
func NewStorage(database int) *redis.Storage {
	host := "localhost"
	port := 6379
	password := ""
	if client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		password = client.Options().Password
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
