package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/recovery"
)

// JobState 任务状态.
type JobState int32

const (
	// JobStateRunning 控制循环运行中（扫描或休眠）.
	JobStateRunning JobState = iota
	// JobStateDegraded 控制循环异常退出，任务不可用.
	JobStateDegraded
	// JobStateStopped 控制循环已按关闭请求退出.
	JobStateStopped
)

// String 返回状态字符串.
func (s JobState) String() string {
	switch s {
	case JobStateRunning:
		return "running"
	case JobStateDegraded:
		return "degraded"
	case JobStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// job 拥有一组触发器和一个专属控制循环.
//
// 触发器集合由控制循环和变更调用共享，受 mu 保护.
// 变更方先递增 pending 并唤醒循环，循环在扫描中看到 pending > 0 会立即放弃本轮扫描并释放锁，
// 因此变更调用的延迟取决于中断一次扫描的时间，而不是循环的休眠时长.
type job struct {
	name   string
	id     string
	worker Worker
	opts   *options
	tracer trace.Tracer
	stats  *JobStats

	mu       sync.Mutex
	triggers map[string]*trigger

	pending atomic.Int32 // 等待获取锁的变更数量
	closing atomic.Bool
	state   atomic.Int32

	// wake 容量为 1，发送永不阻塞，多次唤醒会合并.
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	errMu sync.RWMutex
	err   error

	panicLog rate.Sometimes
}

// newJob 创建任务，调用 start 后控制循环才开始运行.
func newJob(name string, worker Worker, opts *options) *job {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		name:     name,
		id:       uuid.NewString(),
		worker:   worker,
		opts:     opts,
		tracer:   opts.tracer(),
		stats:    &JobStats{},
		triggers: make(map[string]*trigger),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if opts.panicLogInterval > 0 {
		j.panicLog.Interval = opts.panicLogInterval
	} else {
		j.panicLog.Every = 1
	}
	return j
}

func (j *job) start() {
	go j.loop()
}

// loop 控制循环：扫描、触发、计算休眠时长、休眠，直到观察到 closing.
func (j *job) loop() {
	defer close(j.done)

	for {
		if j.closing.Load() {
			j.state.CompareAndSwap(int32(JobStateRunning), int32(JobStateStopped))
			return
		}

		var (
			wait    time.Duration
			bounded bool
		)
		if err := recovery.Call(func() { wait, bounded = j.scan() }); err != nil {
			j.degrade(err)
			return
		}

		j.sleep(wait, bounded)
	}
}

// scan 持锁扫描一轮，返回下一次需要醒来的时长.
// bounded 为 false 表示没有未暂停的触发器，只能被显式唤醒.
func (j *job) scan() (wait time.Duration, bounded bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for name, t := range j.triggers {
		if j.pending.Load() > 0 || j.closing.Load() {
			break
		}
		if t.paused {
			continue
		}
		now := time.Now()
		if t.isDue(now) {
			j.fire(name, t, now)
		}
	}

	return j.nextWaitLocked(time.Now())
}

// nextWaitLocked 计算未暂停触发器中最近的到期时长.
func (j *job) nextWaitLocked(now time.Time) (time.Duration, bool) {
	var (
		closest time.Duration
		found   bool
	)
	for _, t := range j.triggers {
		if t.paused {
			continue
		}
		r := t.remaining(now)
		if !found || r < closest {
			closest, found = r, true
		}
		if closest == 0 {
			break
		}
	}
	return closest, found
}

// sleep 在唤醒信号、超时和关闭之间等待.
func (j *job) sleep(wait time.Duration, bounded bool) {
	if j.pending.Load() > 0 {
		// 变更完成后会再次唤醒
		bounded = false
	} else if bounded && wait <= 0 {
		return
	}

	var timeout <-chan time.Time
	if bounded {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-j.wake:
	case <-timeout:
	case <-j.ctx.Done():
	}
}

// fire 调用 worker 并记录结果. 调用方持有 mu.
func (j *job) fire(name string, t *trigger, now time.Time) {
	t.lastShot = now

	fc := &FireContext{
		Job:       j.name,
		JobID:     j.id,
		Trigger:   name,
		Interval:  t.interval,
		StartTime: now,
	}

	ctx, span := j.tracer.Start(j.ctx, "scheduler.fire",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("scheduler.job", j.name),
			attribute.String("scheduler.job_id", j.id),
			attribute.String("scheduler.trigger", name),
			attribute.Int64("scheduler.interval_seconds", int64(t.interval/time.Second)),
		),
	)
	defer span.End()

	if err := j.opts.hooks.runBeforeHooks(ctx, fc); err != nil {
		fc.Skipped = true
		fc.SkipReason = err.Error()
		fc.Error = fmt.Errorf("%w: %w", ErrFireSkipped, err)
		j.stats.recordSkip()
		j.opts.recorder.RecordSkip(j.name, name)
		span.AddEvent("skipped", trace.WithAttributes(attribute.String("reason", fc.SkipReason)))
		j.opts.hooks.runSkipHooks(ctx, fc)
		j.opts.logDebugf("触发已跳过 [job:%s] [trigger:%s] [reason:%s]", j.name, name, fc.SkipReason)
		return
	}

	start := time.Now()
	err := recovery.Call(func() { j.worker.Run(name) })
	fc.Duration = time.Since(start)
	fc.Error = err

	t.fires++
	j.stats.recordFire(name, now, fc.Duration, err)
	j.opts.recorder.RecordFire(j.name, name, fc.Duration)

	if err != nil {
		t.panics++
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		j.opts.recorder.RecordPanic(j.name, name)
		j.reportPanic(ctx, name, err)
		j.opts.hooks.runPanicHooks(ctx, fc)
	}

	j.opts.hooks.runAfterHooks(ctx, fc)
}

// reportPanic 按 panicLogInterval 节流输出 worker panic 日志.
func (j *job) reportPanic(ctx context.Context, trigger string, err error) {
	log := j.opts.logger
	if log == nil {
		return
	}
	j.panicLog.Do(func() {
		fields := []logger.Field{
			logger.String("job", j.name),
			logger.String("trigger", trigger),
			logger.Err(err),
		}
		var pe *recovery.PanicError
		if errors.As(err, &pe) {
			fields = append(fields, logger.String("stack", string(pe.Stack)))
		}
		log.WithContext(ctx).With(fields...).Error("[Scheduler] worker panic recovered")
	})
}

// degrade 将任务标记为不可用. 只在控制循环 goroutine 上调用.
func (j *job) degrade(cause error) {
	err := fmt.Errorf("%w: %w", ErrJobDegraded, cause)

	j.errMu.Lock()
	j.err = err
	j.errMu.Unlock()
	j.state.Store(int32(JobStateDegraded))

	j.opts.recorder.SetDegraded(j.name, true)
	j.opts.logErrorf("任务控制循环异常退出 [job:%s] [id:%s] [error:%v]", j.name, j.id, cause)

	if herr := recovery.Call(func() { j.opts.hooks.runDegradedHooks(j.name, err) }); herr != nil {
		j.opts.logErrorf("降级钩子执行失败 [job:%s] [error:%v]", j.name, herr)
	}
}

// State 返回任务状态.
func (j *job) State() JobState {
	return JobState(j.state.Load())
}

// Err 返回任务降级原因，正常运行时为 nil.
func (j *job) Err() error {
	j.errMu.RLock()
	defer j.errMu.RUnlock()
	return j.err
}

// signal 尽力唤醒控制循环. 循环已退出时信号被丢弃.
func (j *job) signal() {
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// exclusive 按写意图协议获得触发器集合的独占访问：
// 声明意图并唤醒循环，加锁执行 fn，撤销意图后再次唤醒循环以使用最新状态重新计算休眠时长.
func (j *job) exclusive(fn func(now time.Time)) {
	j.pending.Add(1)
	j.signal()

	j.mu.Lock()
	defer func() {
		j.pending.Add(-1)
		j.mu.Unlock()
		j.signal()
	}()

	fn(time.Now())
}

// mutate 在任务可用时执行变更.
func (j *job) mutate(op string, fn func(now time.Time)) {
	if st := j.State(); st != JobStateRunning {
		j.opts.logDebugf("任务不可用，忽略操作 [job:%s] [op:%s] [state:%s]", j.name, op, st)
		return
	}

	var count int
	j.exclusive(func(now time.Time) {
		fn(now)
		count = len(j.triggers)
	})
	j.opts.recorder.SetTriggers(j.name, count)
}

func (j *job) addTrigger(name string, interval time.Duration) {
	j.mutate("add_trigger", func(time.Time) {
		if _, exists := j.triggers[name]; exists {
			j.opts.logDebugf("触发器已存在，忽略 [job:%s] [trigger:%s]", j.name, name)
			return
		}
		j.triggers[name] = newTrigger(interval)
		j.opts.logDebugf("触发器已添加 [job:%s] [trigger:%s] [interval:%s]", j.name, name, interval)
	})
}

func (j *job) removeTrigger(name string) {
	j.mutate("remove_trigger", func(time.Time) {
		delete(j.triggers, name)
	})
}

func (j *job) removeTriggers() {
	j.mutate("remove_triggers", func(time.Time) {
		clear(j.triggers)
	})
}

func (j *job) changeTriggerInterval(name string, interval time.Duration) {
	j.mutate("change_trigger_interval", func(now time.Time) {
		if t, ok := j.triggers[name]; ok {
			t.setInterval(interval, now)
			j.opts.logDebugf("触发器间隔已修改 [job:%s] [trigger:%s] [interval:%s]", j.name, name, interval)
		}
	})
}

func (j *job) setPaused(name string, paused bool) {
	j.mutate("set_paused", func(time.Time) {
		if t, ok := j.triggers[name]; ok {
			t.paused = paused
		}
	})
}

func (j *job) setAllPaused(paused bool) {
	j.mutate("set_all_paused", func(time.Time) {
		for _, t := range j.triggers {
			t.paused = paused
		}
	})
}

// triggerNames 返回按名称排序的触发器名称快照.
func (j *job) triggerNames() []string {
	var names []string
	j.exclusive(func(time.Time) {
		names = make([]string, 0, len(j.triggers))
		for name := range j.triggers {
			names = append(names, name)
		}
	})
	slices.Sort(names)
	return names
}

// triggerInfos 返回按名称排序的触发器快照.
func (j *job) triggerInfos() []TriggerInfo {
	var infos []TriggerInfo
	j.exclusive(func(now time.Time) {
		infos = make([]TriggerInfo, 0, len(j.triggers))
		for name, t := range j.triggers {
			infos = append(infos, t.info(name, now))
		}
	})
	slices.SortFunc(infos, func(a, b TriggerInfo) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return infos
}

// stop 请求控制循环退出，不等待.
func (j *job) stop() {
	j.closing.Store(true)
	j.cancel()
	j.signal()
}

// release 请求退出并等待控制循环结束. 可重复调用.
func (j *job) release() {
	j.stop()
	<-j.done
}

// shutdown 同 release，但等待受 ctx 约束.
func (j *job) shutdown(ctx context.Context) error {
	j.stop()
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
