package algorithm

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/wyfcoding/pstree/tracing"
)

// RangeRequest 一次历史版本区间查询。
type RangeRequest struct {
	Version Version
	Lo, Hi  int
}

// BatchQuery 并发执行一批历史查询，结果按请求顺序返回。
// 查询只读已发布版本，无需加锁；任一查询失败会取消其余未开始的查询并返回第一个错误。
// concurrency <= 0 时依次取 WithBatchConcurrency 的设置与 GOMAXPROCS。
func BatchQuery[T any](ctx context.Context, t *PersistentSegmentTree[T], reqs []RangeRequest, concurrency int) ([]T, error) {
	if concurrency <= 0 {
		concurrency = t.batch
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	ctx, span := tracing.StartSpan(ctx, "pst.batch_query")
	defer span.End()
	tracing.AddTag(ctx, "tree", t.name)
	tracing.AddTag(ctx, "requests", len(reqs))
	tracing.AddTag(ctx, "concurrency", concurrency)

	results := make([]T, len(reqs))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(concurrency)

	for i, req := range reqs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			qctx, qspan := tracing.StartSpan(ctx, "pst.query")
			defer qspan.End()
			tracing.AddTag(qctx, "version", int(req.Version))
			tracing.AddTag(qctx, "lo", req.Lo)
			tracing.AddTag(qctx, "hi", req.Hi)

			v, err := t.Query(req.Version, req.Lo, req.Hi)
			if err != nil {
				tracing.SetError(qctx, err)
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		tracing.SetError(ctx, err)
		t.logger.WarnContext(ctx, "batch query failed", "requests", len(reqs), "trace", tracing.GetTraceID(ctx), "error", err)
		return nil, err
	}
	return results, nil
}
