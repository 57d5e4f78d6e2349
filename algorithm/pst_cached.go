package algorithm

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/pstree/cache"
	"github.com/wyfcoding/pstree/config"
	"github.com/wyfcoding/pstree/tracing"
)

// CachedReader 对历史区间查询结果做记忆化。
// 版本一经发布永不改变，缓存项不会过期失效，只会被容量淘汰。
type CachedReader[T any] struct {
	tree  *PersistentSegmentTree[T]
	cache cache.Cache
}

// NewCachedReader 使用给定缓存包装一棵树。
func NewCachedReader[T any](tree *PersistentSegmentTree[T], c cache.Cache) *CachedReader[T] {
	return &CachedReader[T]{tree: tree, cache: c}
}

// NewCachedReaderFromConfig 按配置创建 bigcache 缓存；未启用时返回 nil 缓存，直接透传查询。
func NewCachedReaderFromConfig[T any](tree *PersistentSegmentTree[T], cfg config.QueryCacheConfig) (*CachedReader[T], error) {
	if !cfg.Enabled {
		return &CachedReader[T]{tree: tree}, nil
	}
	c, err := cache.NewBigCache(cfg.LifeWindow, cfg.MaxMB)
	if err != nil {
		return nil, err
	}
	return NewCachedReader(tree, c), nil
}

// Query 等价于 tree.Query，命中缓存时不访问树。
func (r *CachedReader[T]) Query(ctx context.Context, v Version, lo, hi int) (T, error) {
	if r.cache == nil {
		return r.tree.Query(v, lo, hi)
	}

	// 先裁剪，使等价区间共用同一个键
	lo, hi = max(lo, 1), min(hi, r.tree.n)
	// 名称可能重复，键中使用树的唯一 id
	key := fmt.Sprintf("%d:%d:%d:%d", r.tree.id, v, lo, hi)

	var cached T
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		r.tree.inst.count("cached_query", "hit")
		tracing.AddTag(ctx, "pst.cache_hit", true)
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.tree.logger.WarnContext(ctx, "query cache read failed", "key", key, "error", err)
	}
	r.tree.inst.count("cached_query", "miss")
	tracing.AddTag(ctx, "pst.cache_hit", false)

	res, err := r.tree.Query(v, lo, hi)
	if err != nil {
		return res, err
	}
	if setErr := r.cache.Set(ctx, key, res, 0); setErr != nil {
		r.tree.logger.WarnContext(ctx, "query cache write failed", "key", key, "error", setErr)
	}
	return res, nil
}

// Close 释放缓存资源。
func (r *CachedReader[T]) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}
