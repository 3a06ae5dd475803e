package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRedisPrefix = "adsrocket:cache:"
	scanBatchSize      = 100
)

// Redis is a Layer shared between processes. Redis failures are logged and
// treated as misses; they never fail the read path.
type Redis struct {
	client redis.UniversalClient
	prefix string
	logger logrus.FieldLogger
}

func NewRedis(client redis.UniversalClient, prefix string, logger logrus.FieldLogger) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", addr, err)
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WithError(err).WithField("key", key).Warn("redis cache get failed")
		}
		return nil, false
	}
	return []byte(value), true
}

func (r *Redis) Set(ctx context.Context, key string, data []byte) {
	if err := r.client.Set(ctx, r.prefix+key, string(data), TTL).Err(); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("redis cache set failed")
	}
}

// InvalidateAll deletes every key under the prefix. SCAN is used instead of
// KEYS so a large keyspace does not block the server. A failed DEL does not
// stop the walk; a failed SCAN does, since the cursor is lost, and the
// remaining keys age out within TTL.
func (r *Redis) InvalidateAll(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatchSize).Result()
		if err != nil {
			r.logger.WithError(err).Warn("redis cache scan failed; remaining keys expire with ttl")
			return
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.logger.WithError(err).WithField("keys", len(keys)).Warn("redis cache invalidation failed for batch")
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
