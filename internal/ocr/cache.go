package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// Cache stores recognized text by bitmap content. A miss returns ok == false.
type Cache interface {
	Get(ctx context.Context, key string) (text string, ok bool, err error)
	Set(ctx context.Context, key, text string) error
	Close() error
}

// CacheKey identifies a recognition by the encoded bitmap, mode and languages
func CacheKey(image []byte, mode models.Mode, languages string) string {
	sum := sha256.Sum256(image)
	return fmt.Sprintf("%s:%s:%s", hex.EncodeToString(sum[:]), mode, languages)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to addr and verifies the connection with PING
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (Cache, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisCache{
		client: client,
		ttl:    ttl,
		prefix: "vaultguard:ocr:",
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *redisCache) Set(ctx context.Context, key, text string) error {
	return c.client.Set(ctx, c.prefix+key, text, c.ttl).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
