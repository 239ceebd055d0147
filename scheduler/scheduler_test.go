package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/recovery"
)

// recordingWorker 记录每个触发器的触发时间.
type recordingWorker struct {
	mu    sync.Mutex
	fires map[string][]time.Time
}

func newRecordingWorker() *recordingWorker {
	return &recordingWorker{fires: make(map[string][]time.Time)}
}

func (w *recordingWorker) Run(trigger string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fires[trigger] = append(w.fires[trigger], time.Now())
}

func (w *recordingWorker) count(trigger string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.fires[trigger])
}

func (w *recordingWorker) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, f := range w.fires {
		n += len(f)
	}
	return n
}

// SchedulerTestSuite 调度器测试套件.
type SchedulerTestSuite struct {
	suite.Suite
	scheduler Scheduler
	logger    logger.Logger
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) SetupSuite() {
	s.logger = logger.NewNop()
}

func (s *SchedulerTestSuite) SetupTest() {
	sched, err := New(WithLogger(s.logger))
	s.Require().NoError(err)
	s.scheduler = sched
}

func (s *SchedulerTestSuite) TearDownTest() {
	if s.scheduler != nil {
		s.scheduler.Release()
	}
}

func (s *SchedulerTestSuite) TestNew_Empty() {
	s.Empty(s.scheduler.JobNames())
	s.Empty(s.scheduler.TriggerNames("missing"))
	s.Empty(s.scheduler.Triggers("missing"))
}

func (s *SchedulerTestSuite) TestMustNew() {
	s.NotPanics(func() {
		sched := MustNew()
		sched.Release()
	})
}

func (s *SchedulerTestSuite) TestAddJob() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddJob("job1", newRecordingWorker())

	s.Equal([]string{"job", "job1"}, s.scheduler.JobNames())

	state, ok := s.scheduler.JobState("job")
	s.True(ok)
	s.Equal(JobStateRunning, state)
	s.NoError(s.scheduler.JobErr("job"))
}

func (s *SchedulerTestSuite) TestAddJob_Duplicate() {
	first := newRecordingWorker()
	second := newRecordingWorker()
	s.scheduler.AddJob("job", first)
	s.scheduler.AddJob("job", second)

	s.Equal([]string{"job"}, s.scheduler.JobNames())

	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.Eventually(func() bool { return first.count("trigger") == 1 }, time.Second, 10*time.Millisecond)
	s.Zero(second.total())
}

func (s *SchedulerTestSuite) TestAddJob_Invalid() {
	s.scheduler.AddJob("", newRecordingWorker())
	s.scheduler.AddJob("job", nil)
	s.Empty(s.scheduler.JobNames())
}

func (s *SchedulerTestSuite) TestRemoveJob() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddJob("job1", newRecordingWorker())

	s.scheduler.RemoveJob("job")
	s.Equal([]string{"job1"}, s.scheduler.JobNames())

	s.scheduler.RemoveJob("job1")
	s.Empty(s.scheduler.JobNames())

	_, ok := s.scheduler.JobState("job")
	s.False(ok)
}

func (s *SchedulerTestSuite) TestRemoveJob_Twice() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.RemoveJob("job")
	s.NotPanics(func() { s.scheduler.RemoveJob("job") })
	s.NotPanics(func() { s.scheduler.RemoveJob("never-added") })
}

func (s *SchedulerTestSuite) TestRemoveJob_LoopStopped() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.Eventually(func() bool { return w.count("trigger") >= 2 }, 3*time.Second, 10*time.Millisecond)

	s.scheduler.RemoveJob("job")
	before := w.total()

	time.Sleep(2100 * time.Millisecond)
	s.Equal(before, w.total())
}

func (s *SchedulerTestSuite) TestRelease_Twice() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "trigger", time.Second)

	s.scheduler.Release()
	s.Empty(s.scheduler.JobNames())
	s.NotPanics(func() { s.scheduler.Release() })
}

func (s *SchedulerTestSuite) TestShutdown() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddJob("job1", w)
	s.scheduler.AddTrigger("job", "trigger", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.NoError(s.scheduler.Shutdown(ctx))
	s.Empty(s.scheduler.JobNames())
}

func (s *SchedulerTestSuite) TestShutdown_Timeout() {
	started := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	s.scheduler.AddJob("slow", WorkerFunc(func(string) {
		once.Do(func() { close(started) })
		<-unblock
	}))
	s.scheduler.AddTrigger("slow", "trigger", time.Second)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.scheduler.Shutdown(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	close(unblock)
}

func (s *SchedulerTestSuite) TestAddTrigger() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.scheduler.AddTrigger("job", "trigger1", time.Second)

	s.Equal([]string{"trigger", "trigger1"}, s.scheduler.TriggerNames("job"))
}

func (s *SchedulerTestSuite) TestAddTrigger_Duplicate() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.scheduler.AddTrigger("job", "trigger", time.Hour)

	infos := s.scheduler.Triggers("job")
	s.Require().Len(infos, 1)
	s.Equal(time.Second, infos[0].Interval)
}

func (s *SchedulerTestSuite) TestAddTrigger_Invalid() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "", time.Second)
	s.scheduler.AddTrigger("job", "zero", 0)
	s.scheduler.AddTrigger("job", "negative", -time.Second)
	s.scheduler.AddTrigger("missing", "trigger", time.Second)

	s.Empty(s.scheduler.TriggerNames("job"))
	s.Empty(s.scheduler.TriggerNames("missing"))
}

func (s *SchedulerTestSuite) TestAddTrigger_IntervalNormalized() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "sub-second", 300*time.Millisecond)
	s.scheduler.AddTrigger("job", "fraction", 2500*time.Millisecond)

	infos := s.scheduler.Triggers("job")
	s.Require().Len(infos, 2)
	s.Equal(2*time.Second, infos[0].Interval)
	s.Equal(time.Second, infos[1].Interval)
}

func (s *SchedulerTestSuite) TestRemoveTrigger() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.scheduler.AddTrigger("job", "trigger1", time.Second)

	s.scheduler.RemoveTrigger("job", "trigger")
	s.Equal([]string{"trigger1"}, s.scheduler.TriggerNames("job"))

	s.scheduler.RemoveTrigger("job", "missing")
	s.scheduler.RemoveTrigger("missing", "trigger1")
	s.Equal([]string{"trigger1"}, s.scheduler.TriggerNames("job"))
}

func (s *SchedulerTestSuite) TestRemoveTriggers() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.scheduler.AddTrigger("job", "trigger1", time.Second)

	s.scheduler.RemoveTriggers("job")
	s.Empty(s.scheduler.TriggerNames("job"))
}

func (s *SchedulerTestSuite) TestFire_Immediate() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddTrigger("job", "trigger", time.Hour)

	s.Eventually(func() bool { return w.count("trigger") == 1 }, 500*time.Millisecond, 5*time.Millisecond)
}

func (s *SchedulerTestSuite) TestFire_MutationInterruptsLongSleep() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddTrigger("job", "hourly", time.Hour)
	s.Eventually(func() bool { return w.count("hourly") == 1 }, 500*time.Millisecond, 5*time.Millisecond)

	// 循环此时正按 1 小时休眠
	start := time.Now()
	s.scheduler.AddTrigger("job", "fresh", time.Hour)
	s.Less(time.Since(start), 500*time.Millisecond)

	s.Eventually(func() bool { return w.count("fresh") == 1 }, 500*time.Millisecond, 5*time.Millisecond)
}

func (s *SchedulerTestSuite) TestFire_MutationAbortsScan() {
	const (
		due  = 6
		cost = 300 * time.Millisecond
	)

	var slow atomic.Bool
	started := make(chan struct{}, due+1)
	w := newRecordingWorker()
	worker := WorkerFunc(func(trigger string) {
		if slow.Load() {
			started <- struct{}{}
			time.Sleep(cost)
		}
		w.Run(trigger)
	})

	// 暂停状态下一次性创建，恢复后全部同时到期
	jc := JobConfig{Name: "J"}
	for i := range due {
		jc.Triggers = append(jc.Triggers, TriggerConfig{Name: fmt.Sprintf("t%d", i), Interval: "1h", Paused: true})
	}
	s.Require().NoError(s.scheduler.Apply(&Config{Jobs: []JobConfig{jc}}, func(string) Worker { return worker }))

	slow.Store(true)
	s.scheduler.ResumeTriggers("J")

	select {
	case <-started:
	case <-time.After(time.Second):
		s.FailNow("scan did not start")
	}

	start := time.Now()
	s.scheduler.AddTrigger("J", "fresh", time.Hour)
	s.Less(time.Since(start), 3*cost)
	s.LessOrEqual(w.total(), 2)

	s.Eventually(func() bool { return w.total() == due+1 }, 4*time.Second, 10*time.Millisecond)
	for i := range due {
		s.Equal(1, w.count(fmt.Sprintf("t%d", i)))
	}
	s.Equal(1, w.count("fresh"))
}

func (s *SchedulerTestSuite) TestFire_TwoTriggers() {
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	hooks := NewHooks().
		AfterFire(func(_ context.Context, fc *FireContext) {
			if fc.Trigger == "A" {
				mu.Lock()
				starts = append(starts, fc.StartTime)
				mu.Unlock()
			}
		}).
		Build()

	sched := MustNew(WithLogger(s.logger), WithHooks(hooks))
	defer sched.Release()

	w := newRecordingWorker()
	sched.AddJob("J", w)
	sched.AddTrigger("J", "A", time.Second)
	sched.AddTrigger("J", "B", 5*time.Second)

	// B 的第二次到期恰好在 5 秒处，观察窗口取 4.5 秒
	time.Sleep(4500 * time.Millisecond)

	mu.Lock()
	a := append([]time.Time(nil), starts...)
	mu.Unlock()

	s.GreaterOrEqual(len(a), 4)
	s.Equal(len(a), w.count("A"))
	for i := 1; i < len(a); i++ {
		s.GreaterOrEqual(a[i].Sub(a[i-1]), time.Second)
	}
	s.Equal(1, w.count("B"))
}

func (s *SchedulerTestSuite) TestChangeTriggerInterval() {
	w := newRecordingWorker()
	s.scheduler.AddJob("J", w)
	s.scheduler.AddTrigger("J", "A", time.Second)
	s.Eventually(func() bool { return w.count("A") >= 2 }, 3*time.Second, 10*time.Millisecond)

	s.scheduler.ChangeTriggerInterval("J", "A", 3600*time.Second)
	before := w.count("A")

	time.Sleep(2 * time.Second)
	s.Equal(before, w.count("A"))

	infos := s.scheduler.Triggers("J")
	s.Require().Len(infos, 1)
	s.Equal(time.Hour, infos[0].Interval)
}

func (s *SchedulerTestSuite) TestChangeTriggerInterval_Invalid() {
	s.scheduler.AddJob("job", newRecordingWorker())
	s.scheduler.AddTrigger("job", "trigger", time.Minute)
	s.scheduler.ChangeTriggerInterval("job", "trigger", 0)
	s.scheduler.ChangeTriggerInterval("job", "missing", time.Second)

	infos := s.scheduler.Triggers("job")
	s.Require().Len(infos, 1)
	s.Equal(time.Minute, infos[0].Interval)
}

func (s *SchedulerTestSuite) TestPauseResumeTrigger() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.Eventually(func() bool { return w.count("trigger") == 1 }, 500*time.Millisecond, 5*time.Millisecond)

	s.scheduler.PauseTrigger("job", "trigger")
	before := w.count("trigger")
	time.Sleep(1500 * time.Millisecond)
	s.Equal(before, w.count("trigger"))
	s.True(s.scheduler.Triggers("job")[0].Paused)

	s.scheduler.ResumeTrigger("job", "trigger")
	s.Eventually(func() bool { return w.count("trigger") > before }, 500*time.Millisecond, 5*time.Millisecond)
}

func (s *SchedulerTestSuite) TestPauseResumeTriggers() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.PauseTriggers("job")
	s.scheduler.AddTrigger("job", "a", time.Second)
	s.scheduler.AddTrigger("job", "b", time.Second)
	s.scheduler.PauseTriggers("job")

	time.Sleep(300 * time.Millisecond)
	before := w.total()
	time.Sleep(1500 * time.Millisecond)
	s.Equal(before, w.total())

	s.scheduler.ResumeTriggers("job")
	s.Eventually(func() bool { return w.total() >= before+2 }, 1500*time.Millisecond, 10*time.Millisecond)
	for _, info := range s.scheduler.Triggers("job") {
		s.False(info.Paused)
	}
}

func (s *SchedulerTestSuite) TestJobIsolation() {
	unblock := make(chan struct{})
	defer close(unblock)

	s.scheduler.AddJob("slow", WorkerFunc(func(string) { <-unblock }))
	s.scheduler.AddTrigger("slow", "trigger", time.Second)

	w := newRecordingWorker()
	s.scheduler.AddJob("fast", w)
	s.scheduler.AddTrigger("fast", "trigger", time.Second)

	s.Eventually(func() bool { return w.count("trigger") >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func (s *SchedulerTestSuite) TestWorkerPanic_Contained() {
	var (
		mu    sync.Mutex
		calls int
	)
	s.scheduler.AddJob("job", WorkerFunc(func(trigger string) {
		mu.Lock()
		calls++
		mu.Unlock()
		if trigger == "bad" {
			panic("boom")
		}
	}))
	good := newRecordingWorker()
	s.scheduler.AddJob("other", good)

	s.scheduler.AddTrigger("job", "bad", time.Second)
	s.scheduler.AddTrigger("other", "good", time.Second)

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 3*time.Second, 10*time.Millisecond)

	state, ok := s.scheduler.JobState("job")
	s.True(ok)
	s.Equal(JobStateRunning, state)
	s.GreaterOrEqual(good.count("good"), 2)

	stats, ok := s.scheduler.Stats("job")
	s.True(ok)
	s.GreaterOrEqual(stats.PanicCount, int64(2))
	s.Equal("bad", stats.LastTrigger)

	var pe *recovery.PanicError
	s.True(errors.As(stats.LastError, &pe))
	s.Equal("boom", pe.Value)

	infos := s.scheduler.Triggers("job")
	s.Require().Len(infos, 1)
	s.Equal(infos[0].FireCount, infos[0].PanicCount)
}

func (s *SchedulerTestSuite) TestDegraded() {
	degraded := make(chan error, 1)
	hooks := NewHooks().
		BeforeFire(func(_ context.Context, fc *FireContext) error {
			if fc.Job == "fragile" {
				panic("hook failure")
			}
			return nil
		}).
		OnDegraded(func(job string, err error) {
			degraded <- err
		}).
		Build()

	sched := MustNew(WithLogger(s.logger), WithHooks(hooks))
	defer sched.Release()

	w := newRecordingWorker()
	sched.AddJob("fragile", w)
	sched.AddJob("sturdy", w)
	sched.AddTrigger("fragile", "trigger", time.Second)
	sched.AddTrigger("sturdy", "trigger", time.Second)

	select {
	case err := <-degraded:
		s.ErrorIs(err, ErrJobDegraded)
	case <-time.After(time.Second):
		s.Fail("degraded hook not called")
	}

	state, ok := sched.JobState("fragile")
	s.True(ok)
	s.Equal(JobStateDegraded, state)
	s.Equal("degraded", state.String())

	err := sched.JobErr("fragile")
	s.ErrorIs(err, ErrJobDegraded)
	var pe *recovery.PanicError
	s.True(errors.As(err, &pe))

	// 降级任务拒绝变更但仍可读取
	sched.AddTrigger("fragile", "other", time.Second)
	s.Equal([]string{"trigger"}, sched.TriggerNames("fragile"))

	state, _ = sched.JobState("sturdy")
	s.Equal(JobStateRunning, state)
	s.Eventually(func() bool { return w.count("trigger") >= 1 }, time.Second, 10*time.Millisecond)

	s.NotPanics(func() { sched.RemoveJob("fragile") })
}

func (s *SchedulerTestSuite) TestStats() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddTrigger("job", "trigger", time.Second)
	s.Eventually(func() bool { return w.count("trigger") == 1 }, 500*time.Millisecond, 5*time.Millisecond)

	stats, ok := s.scheduler.Stats("job")
	s.True(ok)
	s.Equal(int64(1), stats.FireCount)
	s.Zero(stats.PanicCount)
	s.Equal("trigger", stats.LastTrigger)
	s.False(stats.LastFireAt.IsZero())
	s.NoError(stats.LastError)

	_, ok = s.scheduler.Stats("missing")
	s.False(ok)
}

func (s *SchedulerTestSuite) TestTriggers_Snapshot() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)
	s.scheduler.AddTrigger("job", "b", time.Minute)
	s.scheduler.AddTrigger("job", "a", time.Hour)
	s.Eventually(func() bool { return w.total() == 2 }, 500*time.Millisecond, 5*time.Millisecond)

	infos := s.scheduler.Triggers("job")
	s.Require().Len(infos, 2)
	s.Equal("a", infos[0].Name)
	s.Equal("b", infos[1].Name)

	for _, info := range infos {
		s.Equal(int64(1), info.FireCount)
		s.False(info.LastShot.IsZero())
		s.Equal(info.LastShot.Add(info.Interval), info.NextDue)
	}
}

func (s *SchedulerTestSuite) TestConcurrentMutations() {
	w := newRecordingWorker()
	s.scheduler.AddJob("job", w)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			for range 50 {
				s.scheduler.AddTrigger("job", name, time.Second)
				s.scheduler.PauseTrigger("job", name)
				s.scheduler.ResumeTrigger("job", name)
				s.scheduler.ChangeTriggerInterval("job", name, 2*time.Second)
				_ = s.scheduler.Triggers("job")
				s.scheduler.RemoveTrigger("job", name)
			}
			s.scheduler.AddTrigger("job", name, time.Second)
		}()
	}
	wg.Wait()

	s.Len(s.scheduler.TriggerNames("job"), 8)
	state, _ := s.scheduler.JobState("job")
	s.Equal(JobStateRunning, state)
}
