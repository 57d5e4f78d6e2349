package algorithm

import (
	"log/slog"
	"math/bits"
	"time"
	"unsafe"

	"github.com/wyfcoding/pstree/config"
	"github.com/wyfcoding/pstree/metrics"
)

type treeOptions struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	name        string
	maxNodes    int
	expectedOps int

	batchConcurrency int
}

// Option 定义可持久化线段树的配置选项。
type Option func(*treeOptions)

// WithName 设置树名称，用于日志与指标的 tree 维度。
func WithName(name string) Option {
	return func(o *treeOptions) {
		o.name = name
	}
}

// WithLogger 注入日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(o *treeOptions) {
		o.logger = logger
	}
}

// WithMetrics 注入指标采集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *treeOptions) {
		o.metrics = m
	}
}

// WithMaxNodes 设置节点池上限，超过后更新返回 ErrOutOfMemory。
func WithMaxNodes(n int) Option {
	return func(o *treeOptions) {
		o.maxNodes = n
	}
}

// WithExpectedOps 预估的更新次数，用于预留节点池容量。
func WithExpectedOps(m int) Option {
	return func(o *treeOptions) {
		o.expectedOps = m
	}
}

// WithBatchConcurrency 设置 BatchQuery 在未显式指定并发度时使用的默认值。
func WithBatchConcurrency(n int) Option {
	return func(o *treeOptions) {
		o.batchConcurrency = n
	}
}

func newTreeOptions(opts []Option) *treeOptions {
	o := &treeOptions{
		name:   "pst",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// expectedNodes 估算节点数：建树约 2n 个，每次更新 ceil(log2 n)+1 个。
func expectedNodes(n, ops int) int {
	depth := bits.Len(uint(n)) + 1
	return 2*n + ops*depth
}

// nodeBytes 单个节点占用的字节数。
func nodeBytes[T any]() int {
	return int(unsafe.Sizeof(pstNode[T]{}))
}

// OptionsFromConfig 根据配置生成选项，内存预算按 T 类型节点的实际大小折算为节点上限。
func OptionsFromConfig[T any](cfg config.TreeConfig) ([]Option, error) {
	limit, err := cfg.NodeLimit(nodeBytes[T]())
	if err != nil {
		return nil, err
	}
	return []Option{
		WithMaxNodes(limit),
		WithExpectedOps(cfg.ExpectedOps),
		WithBatchConcurrency(cfg.BatchConcurrency),
	}, nil
}

// instrument 聚合日志与指标上报，metrics 为空时只做日志。
type instrument struct {
	m    *metrics.Metrics
	name string
}

func (i *instrument) observe(op string, start time.Time, err error) {
	if i.m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.m.OperationsTotal.WithLabelValues(i.name, op, result).Inc()
	i.m.OperationDuration.WithLabelValues(i.name, op).Observe(time.Since(start).Seconds())
}

func (i *instrument) count(op, result string) {
	if i.m == nil {
		return
	}
	i.m.OperationsTotal.WithLabelValues(i.name, op, result).Inc()
}

func (i *instrument) gauges(nodes, versions int) {
	if i.m == nil {
		return
	}
	i.m.NodesAllocated.WithLabelValues(i.name).Set(float64(nodes))
	i.m.Versions.WithLabelValues(i.name).Set(float64(versions))
}
