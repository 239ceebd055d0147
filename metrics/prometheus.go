package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector Prometheus 指标收集器实现.
type PrometheusCollector struct {
	config    *Config
	namespace string

	// 调度指标
	firesTotal   *prometheus.CounterVec
	fireDuration *prometheus.HistogramVec
	panicsTotal  *prometheus.CounterVec
	skipsTotal   *prometheus.CounterVec
	jobs         prometheus.Gauge
	triggers     *prometheus.GaugeVec
	degraded     *prometheus.GaugeVec

	// 管理端 HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// seen 每个任务出现过的触发器，用于 ForgetJob 删除序列
	seenMu sync.Mutex
	seen   map[string]map[string]struct{}

	// 自定义计数器
	counters map[string]*prometheus.CounterVec
	mu       sync.RWMutex

	registry *prometheus.Registry
}

// NewPrometheus 创建 Prometheus 指标收集器.
func NewPrometheus(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "intervalkit"
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// 创建新的注册表，避免与默认注册表冲突
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		config:    cfg,
		namespace: namespace,
		seen:      make(map[string]map[string]struct{}),
		counters:  make(map[string]*prometheus.CounterVec),
		registry:  registry,
	}

	c.firesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fires_total",
			Help:      "Total number of worker invocations",
		},
		[]string{"job", "trigger"},
	)

	c.fireDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fire_duration_seconds",
			Help:      "Worker invocation duration in seconds",
			Buckets:   buckets,
		},
		[]string{"job", "trigger"},
	)

	c.panicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "panics_total",
			Help:      "Total number of worker panics recovered",
		},
		[]string{"job", "trigger"},
	)

	c.skipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skips_total",
			Help:      "Total number of fires skipped by hooks",
		},
		[]string{"job", "trigger"},
	)

	c.jobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs",
			Help:      "Number of registered jobs",
		},
	)

	c.triggers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "triggers",
			Help:      "Number of triggers per job",
		},
		[]string{"job"},
	)

	c.degraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_degraded",
			Help:      "Whether the job control loop has failed (1) or not (0)",
		},
		[]string{"job"},
	)

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	collectors := []prometheus.Collector{
		c.firesTotal,
		c.fireDuration,
		c.panicsTotal,
		c.skipsTotal,
		c.jobs,
		c.triggers,
		c.degraded,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}

	return c, nil
}

// track 记录任务出现过的触发器.
func (c *PrometheusCollector) track(job, trigger string) {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()

	triggers, ok := c.seen[job]
	if !ok {
		triggers = make(map[string]struct{})
		c.seen[job] = triggers
	}
	triggers[trigger] = struct{}{}
}

// RecordFire 记录一次 worker 调用.
func (c *PrometheusCollector) RecordFire(job, trigger string, duration time.Duration) {
	c.track(job, trigger)
	c.firesTotal.WithLabelValues(job, trigger).Inc()
	c.fireDuration.WithLabelValues(job, trigger).Observe(duration.Seconds())
}

// RecordPanic 记录一次 worker panic.
func (c *PrometheusCollector) RecordPanic(job, trigger string) {
	c.track(job, trigger)
	c.panicsTotal.WithLabelValues(job, trigger).Inc()
}

// RecordSkip 记录一次被跳过的触发.
func (c *PrometheusCollector) RecordSkip(job, trigger string) {
	c.track(job, trigger)
	c.skipsTotal.WithLabelValues(job, trigger).Inc()
}

// SetJobs 更新任务数量.
func (c *PrometheusCollector) SetJobs(count int) {
	c.jobs.Set(float64(count))
}

// SetTriggers 更新任务的触发器数量.
func (c *PrometheusCollector) SetTriggers(job string, count int) {
	c.triggers.WithLabelValues(job).Set(float64(count))
}

// SetDegraded 更新任务降级状态.
func (c *PrometheusCollector) SetDegraded(job string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	c.degraded.WithLabelValues(job).Set(v)
}

// ForgetJob 删除任务相关的全部序列.
func (c *PrometheusCollector) ForgetJob(job string) {
	c.seenMu.Lock()
	triggers := c.seen[job]
	delete(c.seen, job)
	c.seenMu.Unlock()

	for trigger := range triggers {
		labels := prometheus.Labels{"job": job, "trigger": trigger}
		c.firesTotal.Delete(labels)
		c.fireDuration.Delete(labels)
		c.panicsTotal.Delete(labels)
		c.skipsTotal.Delete(labels)
	}
	c.triggers.Delete(prometheus.Labels{"job": job})
	c.degraded.Delete(prometheus.Labels{"job": job})
}

// RecordHTTPRequest 记录管理端 HTTP 请求指标.
func (c *PrometheusCollector) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Counter 增加计数器.
//
// 使用示例:
//
//	collector.Counter("config_reloads_total", map[string]string{"result": "ok"})
func (c *PrometheusCollector) Counter(name string, labels map[string]string) {
	c.mu.RLock()
	counter, exists := c.counters[name]
	c.mu.RUnlock()

	// 提取 label 名称和值（保持顺序一致）
	labelNames, labelValues := extractLabels(labels)

	if !exists {
		c.mu.Lock()
		// 双重检查
		if counter, exists = c.counters[name]; !exists {
			counter = prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: c.namespace,
					Name:      name,
					Help:      "Custom counter: " + name,
				},
				labelNames,
			)

			if err := c.registry.Register(counter); err == nil {
				c.counters[name] = counter
			} else {
				counter = nil
			}
		}
		c.mu.Unlock()
	}

	if counter != nil {
		counter.WithLabelValues(labelValues...).Inc()
	}
}

// extractLabels 从 map 中提取 label 名称和值，按名称排序.
func extractLabels(labels map[string]string) ([]string, []string) {
	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}
	sort.Strings(labelNames)

	labelValues := make([]string, 0, len(labels))
	for _, k := range labelNames {
		labelValues = append(labelValues, labels[k])
	}

	return labelNames, labelValues
}

// Registry 返回底层注册表.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// GetHandler 返回 metrics 的 HTTP 处理器.
func (c *PrometheusCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GetPath 返回 metrics 路径.
func (c *PrometheusCollector) GetPath() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}
