// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/config"
)

var (
	// CacheClient is the generic cache client (search sessions, request snapshots).
	CacheClient *redis.Client
	// TrackingCacheClient is the dedicated client for live provider positions.
	TrackingCacheClient *redis.Client
)

// InitCache initializes the generic Redis cache client.
func InitCache() {
	CacheClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := CacheClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (Cache): %v", err)
	}
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitTrackingCache initializes the Redis client for the live tracking feed.
func InitTrackingCache() {
	TrackingCacheClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTrackingDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := TrackingCacheClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (Tracking): %v", err)
	}
}

// GetTrackingCacheClient returns the Redis client for the tracking feed.
func GetTrackingCacheClient() *redis.Client {
	if TrackingCacheClient == nil {
		InitTrackingCache()
	}
	return TrackingCacheClient
}

// InitRedis initializes every Redis client used by the service.
func InitRedis() {
	InitCache()
	InitTrackingCache()
}
