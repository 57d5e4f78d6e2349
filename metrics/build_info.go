package metrics

import (
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/pstree/config"
)

// NewFromConfig 按服务配置创建指标采集器，并登记 pst_build_info。
func NewFromConfig(svc config.ServiceConfig) *Metrics {
	m := NewMetrics(svc.Name)
	m.RegisterBuildInfo(svc.Name, svc.Version, svc.Environment)
	return m
}

// RegisterBuildInfo 登记一条值恒为 1 的构建信息时间序列，重复调用只保留第一次。
// version 为空时回落到二进制内嵌的模块版本。
func (m *Metrics) RegisterBuildInfo(service, version, environment string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	if version == "" {
		version = moduleVersion()
	}

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pst_build_info",
		Help: "Build and runtime information of the process hosting the engine",
	}, []string{"service", "version", "environment", "go_version"})

	m.BuildInfo.WithLabelValues(orUnknown(service), version, orUnknown(environment), runtime.Version()).Set(1)
}

func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "unknown"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
