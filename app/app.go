// Package app 提供守护进程的生命周期管理.
//
// Application 并发启动一组组件（调度器、管理端 HTTP 等），
// 在收到信号、调用 Stop 或任一组件异常退出后，按超时约束依次停止所有组件并执行清理.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/Tsukikage7/intervalkit/logger"
)

// ErrRunning 应用正在运行.
var ErrRunning = errors.New("app: application is already running")

// Component 由 Application 管理生命周期的组件.
type Component interface {
	// Start 启动组件，阻塞直到 ctx 结束或组件出错.
	Start(ctx context.Context) error

	// Stop 停止组件.
	Stop(ctx context.Context) error

	// Name 组件名称.
	Name() string
}

// Application 应用程序.
type Application struct {
	opts       *options
	components []Component
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
}

// New 创建应用程序.
func New(opts ...Option) *Application {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		panic("app: logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Use 注册组件.
func (a *Application) Use(components ...Component) *Application {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.components = append(a.components, components...)
	return a
}

// Run 运行应用程序，阻塞直到关闭完成.
//
// 返回第一个异常退出的组件的错误；由信号或 Stop 触发的正常关闭返回 nil.
func (a *Application) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	components := slices.Clone(a.components)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	for _, hook := range a.opts.onStart {
		if err := hook(a.ctx); err != nil {
			return err
		}
	}

	a.opts.logger.With(
		logger.String("name", a.opts.name),
		logger.String("version", a.opts.version),
		logger.Int("components", len(components)),
	).Info("[App] starting")

	failed := a.start(components)
	runErr := a.wait(failed)
	a.shutdown(components)
	return runErr
}

// Stop 主动停止应用程序.
func (a *Application) Stop() {
	a.cancel()
}

// Context 获取应用上下文，关闭开始时被取消.
func (a *Application) Context() context.Context {
	return a.ctx
}

// Name 获取应用名称.
func (a *Application) Name() string {
	return a.opts.name
}

// Version 获取应用版本.
func (a *Application) Version() string {
	return a.opts.version
}

// start 并发启动组件，返回组件异常退出的通知通道.
func (a *Application) start(components []Component) <-chan error {
	failed := make(chan error, len(components))
	if len(components) == 0 {
		a.opts.logger.Warn("[App] no components registered")
		return failed
	}

	for _, c := range components {
		go func() {
			a.opts.logger.With(logger.String("component", c.Name())).Info("[App] starting component")
			if err := c.Start(a.ctx); err != nil && a.ctx.Err() == nil {
				failed <- fmt.Errorf("%s: %w", c.Name(), err)
			}
		}()
	}
	return failed
}

// wait 等待信号、上下文取消或组件异常退出.
func (a *Application) wait(failed <-chan error) error {
	signals := a.opts.signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.opts.logger.With(logger.String("signal", sig.String())).Info("[App] received signal")
		return nil
	case <-a.ctx.Done():
		a.opts.logger.Info("[App] context cancelled")
		return nil
	case err := <-failed:
		a.opts.logger.With(logger.Err(err)).Error("[App] component failed")
		return err
	}
}

// shutdown 按注册的逆序停止组件，再执行停止钩子和清理.
func (a *Application) shutdown(components []Component) {
	a.cancel()

	a.opts.logger.With(
		logger.Duration("timeout", a.opts.gracefulTimeout),
	).Info("[App] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	for _, hook := range a.opts.onStop {
		if err := hook(ctx); err != nil {
			a.opts.logger.With(logger.Err(err)).Error("[App] stop hook failed")
		}
	}

	for _, c := range slices.Backward(components) {
		a.opts.logger.With(logger.String("component", c.Name())).Info("[App] stopping component")
		if err := c.Stop(ctx); err != nil {
			a.opts.logger.With(
				logger.String("component", c.Name()),
				logger.Err(err),
			).Error("[App] component stop failed")
		}
	}

	a.runCleanups(ctx)
	a.opts.logger.Info("[App] stopped")
}

func (a *Application) runCleanups(ctx context.Context) {
	if len(a.opts.cleanups) == 0 {
		return
	}

	cleanups := slices.Clone(a.opts.cleanups)
	slices.SortStableFunc(cleanups, func(x, y Cleanup) int {
		return x.Priority - y.Priority
	})

	for _, c := range cleanups {
		if err := c.Fn(ctx); err != nil {
			a.opts.logger.With(
				logger.String("cleanup", c.Name),
				logger.Err(err),
			).Error("[App] cleanup failed")
			continue
		}
		a.opts.logger.With(logger.String("cleanup", c.Name)).Debug("[App] cleanup done")
	}
}
