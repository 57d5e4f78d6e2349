package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3" // 高性能本地缓存库
)

// BigCache 实现了 `Cache` 接口，使用 `allegro/bigcache` 作为底层存储。
// BigCache 是一个高性能、支持并发、基于内存的本地缓存，适用于存储大量小对象。
type BigCache struct {
	cache *bigcache.BigCache // 底层的BigCache实例
}

// NewBigCache 创建并返回一个新的 BigCache 实例。
// ttl: 缓存项的全局过期时间。BigCache 对所有项统一设置过期时间。
// maxMB: 缓存的最大容量（单位MB），0 表示不限。
func NewBigCache(ttl time.Duration, maxMB int) (*BigCache, error) {
	config := bigcache.DefaultConfig(ttl)
	config.HardMaxCacheSize = maxMB
	config.CleanWindow = 5 * time.Minute
	config.Verbose = false
	// 缓存的是聚合值的 JSON，条目很小，按小条目预分配分片
	config.Shards = 64
	config.MaxEntrySize = 64
	config.MaxEntriesInWindow = 1024 * config.Shards

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("init bigcache: %w", err)
	}

	return &BigCache{cache: cache}, nil
}

// Get 从BigCache中获取指定键的值。
// value 参数必须是一个指针，缓存的数据会反序列化到其中。未命中时返回 ErrCacheMiss。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return fmt.Errorf("%w: %s", ErrCacheMiss, key)
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set 将一个键值对设置到BigCache中。
// BigCache 不支持按键过期，expiration 参数被忽略，统一使用 NewBigCache 的 ttl。
func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 从BigCache中删除一个或多个键。键不存在时不报错。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Exists 检查BigCache中是否存在指定的键。
func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}

// Len 返回当前缓存的条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 关闭BigCache实例，释放其占用的资源。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
