// Package config 提供了统一的配置加载与管理能力.
// TOML 文件为主，APP_ 前缀的环境变量覆盖，加载后校验，并支持文件变更热更新.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/pstree/logging"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构.
type Config struct {
	Service ServiceConfig `mapstructure:"service" toml:"service"`
	Log     LogConfig     `mapstructure:"log"     toml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" toml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" toml:"tracing"`
	Tree    TreeConfig    `mapstructure:"tree"    toml:"tree"`
}

// ServiceConfig 定义使用引擎的服务的基本信息.
type ServiceConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	Version     string `mapstructure:"version"     toml:"version"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"` // 日志级别。
	Output     string `mapstructure:"output"      toml:"output"      validate:"omitempty,oneof=stdout file both"`      // 日志输出目标。
	File       string `mapstructure:"file"        toml:"file"`                                                         // 日志文件路径。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"    validate:"min=0"`                                 // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" validate:"min=0"`                                 // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"     validate:"min=0"`                                 // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`                                                     // 是否启用压缩。
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"gte=0,lte=1"`
}

// TreeConfig 可持久化线段树引擎参数.
type TreeConfig struct {
	MaxNodes         int              `mapstructure:"max_nodes"         toml:"max_nodes"         validate:"min=0"`
	MemoryBudget     string           `mapstructure:"memory_budget"     toml:"memory_budget"`
	ExpectedOps      int              `mapstructure:"expected_ops"      toml:"expected_ops"      validate:"min=0"`
	BatchConcurrency int              `mapstructure:"batch_concurrency" toml:"batch_concurrency" validate:"min=0"`
	QueryCache       QueryCacheConfig `mapstructure:"query_cache"       toml:"query_cache"`
}

// QueryCacheConfig 历史查询结果缓存配置 (bigcache).
type QueryCacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"     toml:"enabled"`
	LifeWindow time.Duration `mapstructure:"life_window" toml:"life_window"`
	MaxMB      int           `mapstructure:"max_mb"      toml:"max_mb"      validate:"min=0"`
}

// NodeLimit 计算节点池上限。MaxNodes 优先，其次按 MemoryBudget / nodeBytes 折算，0 表示不限.
func (c TreeConfig) NodeLimit(nodeBytes int) (int, error) {
	if c.MaxNodes > 0 {
		return c.MaxNodes, nil
	}
	if c.MemoryBudget == "" {
		return 0, nil
	}
	if nodeBytes <= 0 {
		return 0, fmt.Errorf("node size must be positive, got %d", nodeBytes)
	}
	budget, err := humanize.ParseBytes(c.MemoryBudget)
	if err != nil {
		return 0, fmt.Errorf("parse memory budget %q: %w", c.MemoryBudget, err)
	}
	return int(budget / uint64(nodeBytes)), nil
}

// LoggingConfig 转换为 logging 包的配置.
func (c *Config) LoggingConfig(module string) logging.Config {
	return logging.Config{
		Service:    c.Service.Name,
		Module:     module,
		Level:      c.Log.Level,
		Output:     c.Log.Output,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

var (
	mu        sync.Mutex
	vInstance = viper.New()
	onReload  []func(*Config)
	validate  = validator.New()
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.environment", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tree.batch_concurrency", 8)
	v.SetDefault("tree.query_cache.life_window", 10*time.Minute)
	v.SetDefault("tree.query_cache.max_mb", 64)
}

func read(v *viper.Viper, path string, conf *Config) error {
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// ReadFile 读取并校验配置文件，不启动热更新.
func ReadFile(path string) (*Config, error) {
	conf := &Config{}
	if err := read(viper.New(), path, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// Load 全生产级的配置加载逻辑，加载成功后监听文件变更.
func Load(path string, conf *Config) error {
	mu.Lock()
	defer mu.Unlock()

	if err := read(vInstance, path, conf); err != nil {
		return err
	}

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		next := &Config{}
		if unmarshalErr := vInstance.Unmarshal(next); unmarshalErr != nil {
			slog.Error("reload config unmarshal failed", "error", unmarshalErr)
			return
		}
		if validateErr := validate.Struct(next); validateErr != nil {
			slog.Error("reload config validation failed", "error", validateErr)
			return
		}

		mu.Lock()
		*conf = *next
		hooks := append([]func(*Config){}, onReload...)
		mu.Unlock()

		applyReload(conf, hooks)
	})

	return nil
}

// applyReload 应用新配置：日志级别即时生效，然后依次调用回调.
func applyReload(conf *Config, hooks []func(*Config)) {
	logging.SetLevel(conf.Log.Level)
	slog.Info("config hot-reloaded and validated successfully")
	for _, hook := range hooks {
		hook(conf)
	}
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if unmarshalErr := json.Unmarshal(data, &configMap); unmarshalErr != nil {
		slog.Error("failed to unmarshal config for masking", "error", unmarshalErr)
		return
	}

	mask(configMap)

	maskedJSON, marshalErr := json.MarshalIndent(configMap, "  ", "  ")
	if marshalErr != nil {
		slog.Error("failed to marshal masked config", "error", marshalErr)
		return
	}

	slog.Info("Current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}
			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// GetViper 返回底层的 Viper 实例.
func GetViper() *viper.Viper {
	return vInstance
}
