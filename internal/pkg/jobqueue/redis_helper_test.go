package jobqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
)

// Queue tests flush this DB, keep it away from the application's DB 0 and
// the limiter's DB 1.
const isolatedJobQueueTestRedisDB = 14

// newIsolatedRedisClient connects to the first reachable Redis and skips the
// test when there is none.
func newIsolatedRedisClient(t *testing.T, db int) *redis.Client {
	t.Helper()

	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")
	var lastErr error
	for _, host := range []string{env.GetEnv("CACHE_HOST", "localhost"), "cache", "127.0.0.1"} {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
			DB:       db,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			lastErr = err
			_ = client.Close()
			continue
		}

		if err := client.FlushDB(context.Background()).Err(); err != nil {
			_ = client.Close()
			t.Fatalf("failed to flush redis db %d: %v", db, err)
		}
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
		return client
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return nil
}
