package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/discussion/config"
)

var (
	redisClient *redis.Client
	redisMu     sync.RWMutex
	cacheTTL    = time.Hour
)

// InitRedis creates the shared client. With an empty host caching stays disabled
// and every cache helper is a no-op.
func InitRedis(c config.RedisSection) *redis.Client {
	if c.CacheTTLSec > 0 {
		cacheTTL = time.Duration(c.CacheTTLSec) * time.Second
	}
	if c.RedisHost == "" {
		SetRedis(nil)
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort)),
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	// A failed ping only degrades to cache misses.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		Sugar.Warnf("redis ping %s failed: %v", rc.Options().Addr, err)
	}
	SetRedis(rc)
	return rc
}

// SetRedis replaces the shared client; nil disables caching.
func SetRedis(rc *redis.Client) {
	redisMu.Lock()
	redisClient = rc
	redisMu.Unlock()
}

// GetRedis returns the shared client or nil when caching is disabled.
func GetRedis() *redis.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return redisClient
}
