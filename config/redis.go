package config

import (
	"context"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ConnectRedis creates the redis client used by the cache layer and verifies
// connectivity with a bounded number of ping retries. The cache is treated as
// unreliable at runtime, but failing fast at startup catches bad addresses.
func ConnectRedis(cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			log.Println("Redis connection established successfully")
			return rdb, nil
		}

		if i == maxRetries-1 {
			return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", maxRetries, err)
		}

		backoff := time.Duration(1<<i) * time.Second
		log.Printf("Redis ping failed, retrying in %s: %v", backoff, err)
		time.Sleep(backoff)
	}

	return rdb, nil
}
