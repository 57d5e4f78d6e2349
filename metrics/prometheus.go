// Package metrics 封装 Prometheus 注册表，并预定义可持久化线段树引擎的标准监控指标。
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的标准监控指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	BuildInfo *prometheus.GaugeVec // 构建信息

	// 引擎指标，所有树实例共享，通过 tree 维度区分
	NodesAllocated    *prometheus.GaugeVec     // 节点池已分配节点数 (维度: tree)
	Versions          *prometheus.GaugeVec     // 已发布版本数 (维度: tree)
	OperationsTotal   *prometheus.CounterVec   // 操作总量 (维度: tree, op, result)
	OperationDuration *prometheus.HistogramVec // 操作耗时分布 (维度: tree, op)
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.NodesAllocated = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pst_nodes_allocated",
		Help: "Number of nodes allocated in the node pool",
	}, []string{"tree"})

	m.Versions = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pst_versions",
		Help: "Number of published versions",
	}, []string{"tree"})

	m.OperationsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pst_operations_total",
		Help: "Total number of engine operations",
	}, []string{"tree", "op", "result"})

	// 查询为微秒级，桶从 1us 起指数增长
	m.OperationDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pst_operation_duration_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}, []string{"tree", "op"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回底层注册表。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHttp 在指定端口启动一个独立的 HTTP 服务器用于暴露指标数据。
// 返回一个清理函数用于优雅关闭该服务器。
func (m *Metrics) ExposeHttp(port, path string) func() {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
