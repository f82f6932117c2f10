package cache

import (
	"context"
	"time"
)

// NoopCache never stores anything
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (NoopCache) Delete(ctx context.Context, keys ...string) error { return nil }

func (NoopCache) DeletePrefix(ctx context.Context, prefix string) error { return nil }
