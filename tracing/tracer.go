package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// NewTracerProvider 创建 TracerProvider.
//
// 未启用时返回不导出任何 span 的 provider，调用方可以统一 Shutdown.
// 返回的 provider 不会注册为全局 provider，由调用方通过
// scheduler.WithTracerProvider 显式注入.
func NewTracerProvider(cfg *Config, serviceName, serviceVersion string) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), nil
	}

	if serviceName == "" {
		return nil, ErrEmptyServiceName
	}
	if cfg.OTLP == nil || cfg.OTLP.Endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	endpoint, secure := splitEndpoint(cfg.OTLP.Endpoint)
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if !secure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.OTLP.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLP.Headers))
	}

	exp, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateExporter, err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateResource, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.samplingRate()))),
	), nil
}

// MustNewTracerProvider 创建 TracerProvider，失败时 panic.
func MustNewTracerProvider(cfg *Config, serviceName, serviceVersion string) *sdktrace.TracerProvider {
	tp, err := NewTracerProvider(cfg, serviceName, serviceVersion)
	if err != nil {
		panic(err)
	}
	return tp
}

// splitEndpoint 去掉协议前缀，https 视为安全连接.
func splitEndpoint(endpoint string) (string, bool) {
	if after, ok := strings.CutPrefix(endpoint, "https://"); ok {
		return after, true
	}
	if after, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return after, false
	}
	return endpoint, false
}
