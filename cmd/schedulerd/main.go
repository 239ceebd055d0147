// Command schedulerd 按配置文件运行固定间隔调度任务.
//
// 任务与触发器在 scheduler 段中声明，文件修改或收到 SIGHUP 时热更新；
// 管理端提供任务状态查询、暂停恢复和 Prometheus 指标.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Tsukikage7/intervalkit/app"
	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/metrics"
	"github.com/Tsukikage7/intervalkit/scheduler"
	"github.com/Tsukikage7/intervalkit/tracing"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入.
var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config file (searches ./schedulerd.yaml and /etc/intervalkit/ when empty)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "schedulerd:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, path, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	collector, err := metrics.NewMetrics(&cfg.Metrics)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	tp, err := tracing.NewTracerProvider(&cfg.Tracing, "schedulerd", version)
	if err != nil {
		return fmt.Errorf("create tracer: %w", err)
	}

	sched, err := scheduler.New(
		scheduler.WithLogger(log),
		scheduler.WithRecorder(collector),
		scheduler.WithTracerProvider(tp),
		scheduler.WithPanicLogInterval(cfg.PanicLogInterval),
		scheduler.WithHooks(scheduler.NewHooks().
			OnDegraded(func(job string, err error) {
				log.With(logger.String("job", job), logger.Err(err)).Error("[schedulerd] job degraded")
			}).
			Build()),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	n := newNotifier(log)
	svc := newSchedulerService(sched, logWorkers(log), path, log, collector, n)
	if err := svc.Apply(&cfg.Scheduler); err != nil {
		sched.Release()
		return fmt.Errorf("apply scheduler config: %w", err)
	}

	application := app.New(
		app.Name("schedulerd"),
		app.Version(version),
		app.Logger(log),
		app.GracefulTimeout(cfg.ShutdownTimeout),
		app.RegisterCleanup("tracer", func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		}, 10),
		app.RegisterCloser("logger", log, 100),
	)

	systemd := &systemdComponent{n: n}
	application.Use(svc)
	if cfg.Admin.Addr != "" {
		admin := app.NewHTTP(
			cfg.Admin.Addr,
			newAdminHandler(sched, svc, collector, log),
			app.WithHTTPName("admin"),
			app.WithHTTPLogger(log),
		)
		application.Use(admin)
		systemd.waitFor = append(systemd.waitFor, admin.Ready())
	}
	application.Use(systemd)

	log.With(
		logger.String("config", path),
		logger.Int("jobs", len(cfg.Scheduler.Jobs)),
	).Info("[schedulerd] configured")

	return application.Run()
}
