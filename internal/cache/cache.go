// Package cache provides the read cache used for catalogue and detail lookups
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/japanesestudent/listening-service/internal/config"
	"github.com/japanesestudent/listening-service/internal/models"
	"go.uber.org/zap"
)

// Key prefixes
const (
	audioPrefix     = "audio:"
	audioListPrefix = "audio:list:"
	topicsKey       = "audio:topics"
)

// Cache is a byte-oriented key value store with expiry.
// Every mutation of audio or quiz data must call InvalidateAudio.
type Cache interface {
	// Method Get returns the cached value and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Method Set stores a value for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Method Delete removes the given keys
	Delete(ctx context.Context, keys ...string) error

	// Method DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}

// New creates the cache selected by the configured backend
func New(cfg config.CacheConfig, redisClient *redis.Client) (Cache, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory:
		return NewMemoryCache(), nil
	case config.CacheBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache requires a redis client")
		}
		return NewRedisCache(redisClient), nil
	case config.CacheBackendNone, "":
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// AudioKey returns the key of a single audio detail
func AudioKey(id string) string {
	return audioPrefix + id
}

// AudioListKey returns the key of one catalogue page
func AudioListKey(filter models.AudioFilter) string {
	values := url.Values{}
	values.Set("published", fmt.Sprintf("%t", !filter.IncludeUnpublished))
	values.Set("topic", string(filter.Topic))
	values.Set("level", string(filter.JLPTLevel))
	values.Set("page", fmt.Sprintf("%d", filter.Page))
	values.Set("limit", fmt.Sprintf("%d", filter.Limit))
	return audioListPrefix + values.Encode()
}

// TopicsKey returns the key of the topic statistics
func TopicsKey() string {
	return topicsKey
}

// GetJSON decodes a cached value into dest. A value that cannot be decoded counts as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dest any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes value and stores it
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

// InvalidateAudio drops the detail of the given record, every catalogue page and the topic statistics.
// Failures are logged and otherwise ignored, the entries expire on their own.
func InvalidateAudio(ctx context.Context, c Cache, logger *zap.Logger, audioID string) {
	keys := []string{topicsKey}
	if audioID != "" {
		keys = append(keys, AudioKey(audioID))
	}
	if err := c.Delete(ctx, keys...); err != nil {
		logger.Warn("Failed to invalidate cached audio", zap.String("audio_id", audioID), zap.Error(err))
	}
	if err := c.DeletePrefix(ctx, audioListPrefix); err != nil {
		logger.Warn("Failed to invalidate cached audio lists", zap.Error(err))
	}
}
