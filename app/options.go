package app

import (
	"context"
	"os"
	"time"

	"github.com/Tsukikage7/intervalkit/logger"
)

// Hook 生命周期钩子.
type Hook func(ctx context.Context) error

// Cleanup 清理任务.
type Cleanup struct {
	Name     string
	Fn       Hook
	Priority int // 数字越小越先执行
}

// options 内部配置.
type options struct {
	name            string
	version         string
	logger          logger.Logger
	gracefulTimeout time.Duration
	signals         []os.Signal
	onStart         []Hook
	onStop          []Hook
	cleanups        []Cleanup
}

func defaultOptions() *options {
	return &options{
		name:            "schedulerd",
		version:         "dev",
		gracefulTimeout: 30 * time.Second,
	}
}

// Option 配置选项.
type Option func(*options)

// Name 设置应用名称.
func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// Version 设置应用版本.
func Version(version string) Option {
	return func(o *options) { o.version = version }
}

// Logger 设置日志记录器（必需）.
func Logger(log logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// GracefulTimeout 设置优雅关闭超时时间，小于等于 0 时忽略.
func GracefulTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// Signals 设置触发关闭的系统信号，默认 SIGINT、SIGTERM.
func Signals(signals ...os.Signal) Option {
	return func(o *options) { o.signals = signals }
}

// OnStart 添加启动前钩子，返回错误时应用不启动.
func OnStart(hook Hook) Option {
	return func(o *options) { o.onStart = append(o.onStart, hook) }
}

// OnStop 添加停止钩子，在组件停止前执行.
func OnStop(hook Hook) Option {
	return func(o *options) { o.onStop = append(o.onStop, hook) }
}

// RegisterCleanup 注册清理任务，在所有组件停止后执行.
func RegisterCleanup(name string, fn Hook, priority int) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, Cleanup{
			Name:     name,
			Fn:       fn,
			Priority: priority,
		})
	}
}

// RegisterCloser 注册 io.Closer 作为清理任务.
func RegisterCloser(name string, closer interface{ Close() error }, priority int) Option {
	return RegisterCleanup(name, func(context.Context) error {
		return closer.Close()
	}, priority)
}
