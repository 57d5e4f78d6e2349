package algorithm

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wyfcoding/pstree/cache"
	"github.com/wyfcoding/pstree/config"
	"github.com/wyfcoding/pstree/metrics"
	"github.com/wyfcoding/pstree/xerrors"
)

func buildHistory(t *testing.T, opts ...Option) *PersistentSegmentTree[int64] {
	t.Helper()
	tree, err := NewPersistentSegmentTreeFromSlice([]int64{1, 2, 3, 4, 5, 6, 7, 8}, Int64Sum{}, opts...)
	require.NoError(t, err)
	v := tree.Latest()
	for pos := 1; pos <= 8; pos++ {
		v, err = tree.Set(v, pos, 0)
		require.NoError(t, err)
	}
	return tree
}

func TestBatchQueryPreservesOrder(t *testing.T) {
	tree := buildHistory(t)

	// 版本 v 中前 v 个位置已被清零
	var reqs []RangeRequest
	var want []int64
	for v := 8; v >= 0; v-- {
		reqs = append(reqs, RangeRequest{Version: Version(v), Lo: 1, Hi: 8})
		var sum int64
		for pos := v + 1; pos <= 8; pos++ {
			sum += int64(pos)
		}
		want = append(want, sum)
	}

	got, err := BatchQuery(context.Background(), tree, reqs, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBatchQueryStopsOnError(t *testing.T) {
	tree := buildHistory(t)

	reqs := []RangeRequest{
		{Version: 0, Lo: 1, Hi: 8},
		{Version: 42, Lo: 1, Hi: 8},
		{Version: 1, Lo: 1, Hi: 8},
	}
	got, err := BatchQuery(context.Background(), tree, reqs, 0)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, xerrors.ErrUnknownVersion)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BatchQuery(ctx, tree, reqs[:1], 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestBatchQueryEmitsSpans(t *testing.T) {
	rec := recordSpans(t)

	tree := buildHistory(t, WithName("traced"), WithBatchConcurrency(3))
	_, err := BatchQuery(context.Background(), tree, []RangeRequest{
		{Version: 1, Lo: 1, Hi: 4},
		{Version: 2, Lo: 5, Hi: 8},
	}, 0)
	require.NoError(t, err)

	var batch, queries int
	for _, s := range rec.Ended() {
		switch s.Name() {
		case "pst.batch_query":
			batch++
			// 未显式指定并发度时取树上配置的默认值
			assert.Contains(t, s.Attributes(), attribute.Int("concurrency", 3))
			assert.Contains(t, s.Attributes(), attribute.String("tree", "traced"))
		case "pst.query":
			queries++
			assert.Equal(t, codes.Unset, s.Status().Code)
		}
	}
	assert.Equal(t, 1, batch)
	assert.Equal(t, 2, queries)
}

func TestCachedReader(t *testing.T) {
	m := metrics.NewMetrics("pst-cache-test")
	tree := buildHistory(t, WithName("cached"), WithMetrics(m))

	bc, err := cache.NewBigCache(10*time.Minute, 8)
	require.NoError(t, err)
	reader := NewCachedReader(tree, bc)
	defer reader.Close()

	ctx := context.Background()
	first, err := reader.Query(ctx, 3, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(4+5+6+7+8), first)

	// 裁剪后等价的区间命中同一缓存项
	second, err := reader.Query(ctx, 3, -10, 100)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("cached", "cached_query", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("cached", "cached_query", "hit")))
	assert.Equal(t, 1, bc.Len())

	_, err = reader.Query(ctx, 99, 1, 8)
	assert.ErrorIs(t, err, xerrors.ErrUnknownVersion)
	assert.Equal(t, 1, bc.Len(), "errors are not cached")
}

// 同名的两棵树共用一个缓存时互不串扰
func TestCachedReadersShareCache(t *testing.T) {
	a, err := NewPersistentSegmentTreeFromSlice([]int64{1, 2, 3}, Int64Sum{})
	require.NoError(t, err)
	b, err := NewPersistentSegmentTreeFromSlice([]int64{100, 200, 300}, Int64Sum{})
	require.NoError(t, err)
	require.Equal(t, a.Name(), b.Name())

	bc, err := cache.NewBigCache(10*time.Minute, 8)
	require.NoError(t, err)
	defer bc.Close()
	ra, rb := NewCachedReader(a, bc), NewCachedReader(b, bc)

	ctx := context.Background()
	got, err := ra.Query(ctx, 0, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)

	got, err = rb.Query(ctx, 0, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got)
	assert.Equal(t, 2, bc.Len())
}

func TestCachedReaderTagsSpan(t *testing.T) {
	rec := recordSpans(t)
	tree := buildHistory(t)
	bc, err := cache.NewBigCache(10*time.Minute, 8)
	require.NoError(t, err)
	reader := NewCachedReader(tree, bc)
	defer reader.Close()

	for range 2 {
		ctx, span := otel.Tracer("test").Start(context.Background(), "lookup")
		_, err := reader.Query(ctx, 1, 1, 8)
		require.NoError(t, err)
		span.End()
	}

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Contains(t, ended[0].Attributes(), attribute.Bool("pst.cache_hit", false))
	assert.Contains(t, ended[1].Attributes(), attribute.Bool("pst.cache_hit", true))
}

func TestCachedReaderFromConfig(t *testing.T) {
	tree := buildHistory(t)

	passthrough, err := NewCachedReaderFromConfig(tree, config.QueryCacheConfig{})
	require.NoError(t, err)
	got, err := passthrough.Query(context.Background(), 0, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
	assert.NoError(t, passthrough.Close())

	cached, err := NewCachedReaderFromConfig(tree, config.QueryCacheConfig{
		Enabled:    true,
		LifeWindow: time.Minute,
		MaxMB:      4,
	})
	require.NoError(t, err)
	defer cached.Close()
	got, err = cached.Query(context.Background(), 8, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig[int64](config.TreeConfig{MemoryBudget: "1KiB"})
	require.NoError(t, err)

	o := newTreeOptions(opts)
	assert.Equal(t, 1024/nodeBytes[int64](), o.maxNodes)

	_, err = OptionsFromConfig[int64](config.TreeConfig{MemoryBudget: "lots"})
	assert.Error(t, err)

	opts, err = OptionsFromConfig[int64](config.TreeConfig{MaxNodes: 7, ExpectedOps: 3, BatchConcurrency: 5})
	require.NoError(t, err)
	o = newTreeOptions(opts)
	assert.Equal(t, 7, o.maxNodes)
	assert.Equal(t, 3, o.expectedOps)
	assert.Equal(t, 5, o.batchConcurrency)
}
