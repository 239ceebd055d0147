package main

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/Tsukikage7/intervalkit/config"
	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/metrics"
	"github.com/Tsukikage7/intervalkit/scheduler"
)

// reloadCounter 配置重载计数器名称.
const reloadCounter = "config_reloads_total"

// schedulerService 将调度器接入应用生命周期，并负责配置热更新.
//
// 热更新只同步 scheduler 段，其余配置需要重启生效.
type schedulerService struct {
	sched     scheduler.Scheduler
	resolve   scheduler.WorkerResolver
	path      string
	log       logger.Logger
	collector *metrics.PrometheusCollector
	notifier  *notifier

	mu      sync.RWMutex
	current scheduler.Config
}

func newSchedulerService(
	sched scheduler.Scheduler,
	resolve scheduler.WorkerResolver,
	path string,
	log logger.Logger,
	collector *metrics.PrometheusCollector,
	n *notifier,
) *schedulerService {
	return &schedulerService{
		sched:     sched,
		resolve:   resolve,
		path:      path,
		log:       log,
		collector: collector,
		notifier:  n,
	}
}

// Name 组件名称.
func (s *schedulerService) Name() string { return "scheduler" }

// Start 监听配置文件变化和重载信号，阻塞直到 ctx 结束.
func (s *schedulerService) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	if sigs := reloadSignals(); len(sigs) > 0 {
		signal.Notify(sigCh, sigs...)
		defer signal.Stop(sigCh)
	}

	watchErr := make(chan error, 1)
	if s.path != "" {
		go func() {
			watchErr <- config.Watch(ctx, s.path, s.onChange, configOptions()...)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			// 监听失败不影响调度，仍可通过信号重载
			if err != nil {
				s.log.With(logger.Err(err)).Warn("[schedulerd] config watch stopped")
			}
		case sig := <-sigCh:
			s.log.With(logger.String("signal", sig.String())).Info("[schedulerd] reload requested")
			_ = s.Reload()
		}
	}
}

// Stop 停止全部任务.
func (s *schedulerService) Stop(ctx context.Context) error {
	return s.sched.Shutdown(ctx)
}

// Reload 重新读取配置文件并同步调度器.
func (s *schedulerService) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := config.Load[daemonConfig](s.path, configOptions()...)
	s.onChange(cfg, err)
	return err
}

// Apply 同步调度配置.
func (s *schedulerService) Apply(cfg *scheduler.Config) error {
	if err := s.sched.Apply(cfg, s.resolve); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = *cfg
	s.mu.Unlock()
	return nil
}

// Current 返回最近一次成功同步的调度配置.
func (s *schedulerService) Current() scheduler.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *schedulerService) onChange(cfg *daemonConfig, err error) {
	s.notifier.reloading()
	defer s.notifier.ready()

	if err == nil {
		err = s.Apply(&cfg.Scheduler)
	}
	if err != nil {
		s.log.With(logger.String("path", s.path), logger.Err(err)).Warn("[schedulerd] config reload failed, keeping current jobs")
		s.countReload("error")
		return
	}

	s.log.With(
		logger.String("path", s.path),
		logger.Int("jobs", len(cfg.Scheduler.Jobs)),
	).Info("[schedulerd] config reloaded")
	s.countReload("ok")
}

func (s *schedulerService) countReload(result string) {
	if s.collector != nil {
		s.collector.Counter(reloadCounter, map[string]string{"result": result})
	}
}
