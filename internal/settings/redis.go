package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/logger"
)

// RedisKV stores each key as a plain Redis string under a shared prefix.
type RedisKV struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

// NewRedisKV connects to redisURL and verifies the connection.
func NewRedisKV(ctx context.Context, redisURL, prefix string, log *logger.Logger) (*RedisKV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	kv := &RedisKV{
		client: redis.NewClient(opts),
		prefix: prefix,
		logger: log,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := kv.client.Ping(pingCtx).Result(); err != nil {
		kv.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis settings backend connected",
		zap.String("redis_url", maskURL(redisURL)),
		zap.String("key_prefix", prefix))

	return kv, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisKV) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisKV) key(key string) string {
	return redisKey(r.prefix, key)
}

func redisKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":settings:" + key
}

// maskURL hides the password of a connection URL for logging.
func maskURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	userPart := raw[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return raw
	}
	return userPart[:colon+1] + "***" + raw[at:]
}
