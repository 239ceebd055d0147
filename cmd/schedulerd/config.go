package main

import (
	"time"

	"github.com/Tsukikage7/intervalkit/config"
	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/metrics"
	"github.com/Tsukikage7/intervalkit/scheduler"
	"github.com/Tsukikage7/intervalkit/tracing"
)

// envPrefix 环境变量前缀，如 SCHEDULERD_ADMIN_ADDR.
const envPrefix = "SCHEDULERD"

// searchPaths 未指定 -config 时的配置搜索路径.
var searchPaths = []string{".", "/etc/intervalkit"}

// daemonConfig schedulerd 配置.
type daemonConfig struct {
	Log       logger.Config    `json:"log" yaml:"log" mapstructure:"log"`
	Admin     adminConfig      `json:"admin" yaml:"admin" mapstructure:"admin"`
	Metrics   metrics.Config   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Tracing   tracing.Config   `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Scheduler scheduler.Config `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`

	// PanicLogInterval 同一触发器 panic 日志的最小间隔.
	PanicLogInterval time.Duration `json:"panic_log_interval" yaml:"panic_log_interval" mapstructure:"panic_log_interval"`

	// ShutdownTimeout 优雅关闭超时.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type adminConfig struct {
	// Addr 管理端监听地址，为空时不启动.
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// Validate 验证配置.
func (c *daemonConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Scheduler.Validate()
}

// configDefaults 配置默认值.
func configDefaults() map[string]any {
	return map[string]any{
		"log.level":          "info",
		"log.format":         "json",
		"log.output":         "console",
		"log.service_name":   "schedulerd",
		"admin.addr":         "127.0.0.1:9090",
		"metrics.path":       "/metrics",
		"metrics.namespace":  "intervalkit",
		"panic_log_interval": "5s",
		"shutdown_timeout":   "10s",
	}
}

func configOptions() []config.Option {
	return []config.Option{
		config.WithEnvPrefix(envPrefix),
		config.WithDefaults(configDefaults()),
	}
}

// loadConfig 加载配置，返回配置和实际使用的文件路径.
func loadConfig(path string) (*daemonConfig, string, error) {
	if path != "" {
		cfg, err := config.Load[daemonConfig](path, configOptions()...)
		return cfg, path, err
	}
	return config.LoadWithSearch[daemonConfig]("schedulerd", searchPaths, configOptions()...)
}
