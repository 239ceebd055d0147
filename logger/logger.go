// Package logger 提供调度器使用的结构化日志记录功能.
//
// 默认实现基于 zap，调度器只依赖 Logger 接口，
// 因此宿主应用可以注入自己的实现.
package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// 日志类型常量.
const (
	TypeZap = "zap"
)

// 日志级别常量.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// 输出格式常量.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// 输出目标常量.
const (
	OutputConsole = "console"
	OutputFile    = "file"
	OutputBoth    = "both"
)

// 时间格式常量.
const (
	TimeFormatISO8601  = "iso8601"
	TimeFormatRFC3339  = "rfc3339"
	TimeFormatEpoch    = "epoch"
	TimeFormatDateTime = "datetime"
)

// Field 表示一个日志字段.
type Field struct {
	Key   string
	Value any
}

// Logger 日志记录器接口.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)

	// With 返回带有附加字段的 logger.
	With(fields ...Field) Logger

	// WithContext 返回带有 context 中链路信息的 logger.
	WithContext(ctx context.Context) Logger

	Sync() error
	Close() error
}

// NewLogger 创建 logger 实例.
func NewLogger(config *Config) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	switch config.Type {
	case TypeZap, "":
		return newZapLogger(config)
	default:
		return nil, &ConfigError{Field: "type", Message: "unsupported logger type: " + config.Type}
	}
}

// MustNewLogger 创建 logger 实例，失败时 panic.
func MustNewLogger(config *Config) Logger {
	l, err := NewLogger(config)
	if err != nil {
		panic(err)
	}
	return l
}

// traceFields 从 context 中提取 OpenTelemetry 的 traceId 和 spanId.
func traceFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{
		{Key: "traceId", Value: sc.TraceID().String()},
		{Key: "spanId", Value: sc.SpanID().String()},
	}
}
