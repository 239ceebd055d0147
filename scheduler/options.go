package scheduler

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/intervalkit/logger"
)

// tracerName OpenTelemetry instrumentation 名称.
const tracerName = "github.com/Tsukikage7/intervalkit/scheduler"

// Option 调度器配置选项.
type Option func(*options)

// options 调度器内部配置.
type options struct {
	logger           logger.Logger
	hooks            *Hooks
	recorder         Recorder
	tracerProvider   trace.TracerProvider
	panicLogInterval time.Duration
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		recorder:         nopRecorder{},
		panicLogInterval: 5 * time.Second,
	}
}

func (o *options) tracer() trace.Tracer {
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// WithLogger 设置日志记录器.
//
// 未设置时调度器不输出日志.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithHooks 设置全局钩子.
//
// 对所有任务生效.
func WithHooks(hooks *Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithRecorder 设置指标记录器.
//
// 示例:
//
//	collector := metrics.MustNewMetrics(metrics.DefaultConfig())
//	s := scheduler.MustNew(scheduler.WithRecorder(collector))
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithTracerProvider 设置链路追踪 TracerProvider.
//
// 每次触发生成一个 span. 默认使用全局 TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithPanicLogInterval 设置同一任务 worker panic 日志的最小输出间隔.
//
// 统计、指标和钩子不受影响. 小于等于 0 表示每次都输出.
// 默认: 5 秒.
func WithPanicLogInterval(d time.Duration) Option {
	return func(o *options) {
		o.panicLogInterval = d
	}
}

// 日志辅助方法.

func (o *options) logDebugf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Debugf("[Scheduler] "+format, args...)
	}
}

func (o *options) logWarnf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Warnf("[Scheduler] "+format, args...)
	}
}

func (o *options) logErrorf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Errorf("[Scheduler] "+format, args...)
	}
}
