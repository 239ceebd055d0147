package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Tsukikage7/intervalkit/logger"
)

// HTTPOption HTTP 组件配置选项.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	name         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	logger       logger.Logger
}

func defaultHTTPOptions() *httpOptions {
	return &httpOptions{
		name:         "admin-http",
		readTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
		idleTimeout:  60 * time.Second,
	}
}

// WithHTTPName 设置组件名称.
func WithHTTPName(name string) HTTPOption {
	return func(o *httpOptions) { o.name = name }
}

// WithHTTPTimeouts 设置读写和空闲超时.
func WithHTTPTimeouts(read, write, idle time.Duration) HTTPOption {
	return func(o *httpOptions) {
		o.readTimeout = read
		o.writeTimeout = write
		o.idleTimeout = idle
	}
}

// WithHTTPLogger 设置日志记录器.
func WithHTTPLogger(log logger.Logger) HTTPOption {
	return func(o *httpOptions) { o.logger = log }
}

// HTTP HTTP 服务组件.
type HTTP struct {
	opts    *httpOptions
	addr    string
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	ready    chan struct{}
}

// NewHTTP 创建 HTTP 组件.
//
// 示例:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", collector.GetHandler())
//	application.Use(app.NewHTTP("127.0.0.1:9090", mux))
func NewHTTP(addr string, handler http.Handler, opts ...HTTPOption) *HTTP {
	o := defaultHTTPOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &HTTP{
		opts:    o,
		addr:    addr,
		handler: handler,
		ready:   make(chan struct{}),
	}
}

// Start 监听并提供服务，阻塞直到 ctx 结束或服务出错.
func (s *HTTP) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.readTimeout,
		WriteTimeout: s.opts.writeTimeout,
		IdleTimeout:  s.opts.idleTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.logDebugf("HTTP 服务启动 [addr:%s]", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	return nil
}

// Stop 优雅关闭 HTTP 服务.
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logDebugf("HTTP 服务停止中")
	return srv.Shutdown(ctx)
}

// Name 返回组件名称.
func (s *HTTP) Name() string {
	return s.opts.name
}

// Ready 返回监听建立后关闭的通道.
func (s *HTTP) Ready() <-chan struct{} {
	return s.ready
}

// Addr 返回实际监听地址，监听建立前返回配置地址.
func (s *HTTP) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *HTTP) logDebugf(format string, args ...any) {
	if log := s.opts.logger; log != nil {
		log.Debugf("[HTTP] "+format, args...)
	}
}
