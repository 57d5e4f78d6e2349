// Package cache 提供了缓存抽象与基于 allegro/bigcache 的本地内存实现。
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss 缓存未命中。调用方通过 errors.Is 判定。
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}
