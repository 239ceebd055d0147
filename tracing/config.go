// Package tracing 为调度器的触发 span 提供 OpenTelemetry 导出.
package tracing

// Config 链路追踪配置.
type Config struct {
	// Enabled 是否启用链路追踪
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// OTLP OTLP/HTTP 导出配置
	OTLP *OTLPConfig `json:"otlp" yaml:"otlp" mapstructure:"otlp"`
	// SamplingRate 采样率 (0.0-1.0)
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`
}

// OTLPConfig OTLP配置.
type OTLPConfig struct {
	// Endpoint Collector 端点，可带 http:// 或 https:// 前缀
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	// Headers 请求头[可选]
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
}

// samplingRate 返回有效采样率，越界时取 1.0.
func (c *Config) samplingRate() float64 {
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		return 1.0
	}
	return c.SamplingRate
}
