package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMiddleware 返回管理端 HTTP 指标采集中间件.
//
// 经 http.ServeMux 路由的请求以匹配的路由模式作为 path 标签，避免路径参数放大基数.
//
// 使用示例:
//
//	collector := metrics.MustNewMetrics(metrics.DefaultConfig())
//	handler := metrics.HTTPMiddleware(collector)(mux)
func HTTPMiddleware(collector *PrometheusCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			collector.RecordHTTPRequest(
				r.Method,
				routeLabel(r),
				strconv.Itoa(rw.statusCode),
				time.Since(start),
			)
		})
	}
}

// routeLabel 返回路由模式（去掉方法前缀），未经路由时返回请求路径.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return r.URL.Path
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}
