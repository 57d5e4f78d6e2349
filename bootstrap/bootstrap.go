// Package bootstrap 根据统一配置装配引擎所需的基础设施：日志、指标、链路追踪与树选项。
package bootstrap

import (
	"context"
	"slices"
	"time"

	"github.com/wyfcoding/pstree/algorithm"
	"github.com/wyfcoding/pstree/config"
	"github.com/wyfcoding/pstree/logging"
	"github.com/wyfcoding/pstree/metrics"
	"github.com/wyfcoding/pstree/tracing"
)

// Bootstrapper 持有已初始化的基础设施，Close 时按初始化的逆序释放。
type Bootstrapper struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *metrics.Metrics // metrics.enabled 为 false 时为 nil

	closers []func()
}

// Load 读取配置文件 (开启热更新) 后初始化基础设施。
func Load(path string) (*Bootstrapper, error) {
	conf := &config.Config{}
	if err := config.Load(path, conf); err != nil {
		return nil, err
	}
	return New(conf)
}

// New 使用已加载的配置初始化基础设施。
func New(conf *config.Config) (*Bootstrapper, error) {
	b := &Bootstrapper{
		Config: conf,
		Logger: logging.NewFromConfig(conf.LoggingConfig("bootstrap")),
	}

	if conf.Metrics.Enabled {
		b.Metrics = metrics.NewFromConfig(conf.Service)
		if conf.Metrics.Port != "" {
			b.closers = append(b.closers, b.Metrics.ExposeHttp(conf.Metrics.Port, conf.Metrics.Path))
		}
	}

	shutdown, err := tracing.InitTracer(conf.Service.Name, conf.Tracing)
	if err != nil {
		b.Logger.Error("failed to init tracer", "error", err)
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			b.Logger.Error("failed to shutdown tracer", "error", err)
		}
	})

	b.Logger.Info("engine infrastructure initialized",
		"service", conf.Service.Name,
		"environment", conf.Service.Environment,
		"metrics", conf.Metrics.Enabled,
		"tracing", conf.Tracing.Enabled)
	return b, nil
}

// TreeOptions 生成名为 name 的树的选项：节点上限、预估操作数、批量并发度来自 tree 配置，
// 日志与指标使用本实例初始化的采集器。
func TreeOptions[T any](b *Bootstrapper, name string) ([]algorithm.Option, error) {
	opts, err := algorithm.OptionsFromConfig[T](b.Config.Tree)
	if err != nil {
		return nil, err
	}
	return append(opts,
		algorithm.WithName(name),
		algorithm.WithLogger(b.Logger.With("module", "algorithm")),
		algorithm.WithMetrics(b.Metrics),
	), nil
}

// CachedReader 按 tree.query_cache 配置为 tree 创建缓存读取器。
func CachedReader[T any](b *Bootstrapper, tree *algorithm.PersistentSegmentTree[T]) (*algorithm.CachedReader[T], error) {
	return algorithm.NewCachedReaderFromConfig(tree, b.Config.Tree.QueryCache)
}

// Close 释放指标服务与追踪导出器。
func (b *Bootstrapper) Close() {
	for _, c := range slices.Backward(b.closers) {
		c()
	}
	b.closers = nil
}
