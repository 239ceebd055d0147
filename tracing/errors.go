package tracing

import "errors"

var (
	// ErrNilConfig 链路追踪配置为空.
	ErrNilConfig = errors.New("tracing: config is nil")

	// ErrEmptyServiceName 服务名称为空.
	ErrEmptyServiceName = errors.New("tracing: service name is empty")

	// ErrEmptyEndpoint OTLP端点为空.
	ErrEmptyEndpoint = errors.New("tracing: otlp endpoint is empty")

	// ErrCreateExporter 创建OTLP导出器失败.
	ErrCreateExporter = errors.New("tracing: create exporter failed")

	// ErrCreateResource 创建资源失败.
	ErrCreateResource = errors.New("tracing: create resource failed")
)
