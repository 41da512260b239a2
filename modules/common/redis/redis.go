package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"maestro-pipeline-server/modules/common/config"
)

// QueueKey is the list batch storyboard jobs are pushed onto.
const QueueKey = "jobs:queue"

// Connect creates a Redis client and verifies the connection.
func Connect(cfg *config.Config) *redis.Client {
	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // managed Redis with self-signed chain
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("🔍 Testing Redis connection...")
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		return nil
	}

	return rdb
}

func cancelKey(jobID string) string {
	return fmt.Sprintf("jobs:cancelled:%s", jobID)
}

// SetJobCancelled raises the cancellation flag for a job. The flag expires
// after an hour so abandoned jobs do not leak keys.
func SetJobCancelled(rdb *redis.Client, jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rdb.Set(ctx, cancelKey(jobID), "1", time.Hour).Err()
}

// IsJobCancelled polls the cancellation flag. Errors are treated as
// not-cancelled: a Redis hiccup must not abort a running pipeline.
func IsJobCancelled(rdb *redis.Client, jobID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	val, err := rdb.Get(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false
	}
	return val == "1"
}

// ClearJobCancelled removes the flag once a job reaches a terminal state.
func ClearJobCancelled(rdb *redis.Client, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Del(ctx, cancelKey(jobID)).Err(); err != nil {
		log.Printf("⚠️ Failed to clear cancel flag for job %s: %v", jobID, err)
	}
}
