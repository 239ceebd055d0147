package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/metrics"
	"github.com/Tsukikage7/intervalkit/scheduler"
)

const testConfig = `
admin:
  addr: 127.0.0.1:0
scheduler:
  jobs:
    - name: reports
      triggers:
        - name: heartbeat
          interval: 1h
        - name: digest
          interval: "@every 2h"
          paused: true
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "schedulerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// recordingNotifier 记录发送的 systemd 状态.
type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingNotifier) notifier() *notifier {
	return &notifier{
		log: logger.NewNop(),
		send: func(state string) (bool, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, state)
			return true, nil
		},
	}
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

// newTestService 创建使用真实调度器的服务.
func newTestService(t *testing.T, path string) (*schedulerService, scheduler.Scheduler, *metrics.PrometheusCollector, *recordingNotifier) {
	t.Helper()
	collector := metrics.MustNewMetrics(&metrics.Config{Namespace: "test"})
	sched := scheduler.MustNew(
		scheduler.WithLogger(logger.NewNop()),
		scheduler.WithRecorder(collector),
	)
	t.Cleanup(sched.Release)

	rec := &recordingNotifier{}
	svc := newSchedulerService(sched, logWorkers(logger.NewNop()), path, logger.NewNop(), collector, rec.notifier())
	return svc, sched, collector, rec
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
scheduler:
  jobs:
    - name: reports
`)

	cfg, used, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "127.0.0.1:9090", cfg.Admin.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "intervalkit", cfg.Metrics.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.PanicLogInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Tracing.Enabled)
	require.Len(t, cfg.Scheduler.Jobs, 1)
}

func TestLoadConfig_Sample(t *testing.T) {
	cfg, _, err := loadConfig("schedulerd.yaml")
	require.NoError(t, err)
	assert.Len(t, cfg.Scheduler.Jobs, 2)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "admin:\n  addr: 127.0.0.1:9090\n")
	t.Setenv("SCHEDULERD_ADMIN_ADDR", "0.0.0.0:9191")

	cfg, _, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9191", cfg.Admin.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, _, err := loadConfig(writeConfig(t, dir, "log:\n  level: loud\n"))
	assert.Error(t, err)

	_, _, err = loadConfig(writeConfig(t, dir, `
scheduler:
  jobs:
    - name: reports
      triggers:
        - name: hourly
          interval: "0 * * * *"
`))
	assert.ErrorIs(t, err, scheduler.ErrIntervalInvalid)
}

func TestLogWorkers(t *testing.T) {
	w := logWorkers(logger.NewNop())("reports")
	require.NotNil(t, w)
	assert.NotPanics(t, func() { w.Run("heartbeat") })
}
