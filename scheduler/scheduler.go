// Package scheduler 提供进程内固定间隔调度功能.
//
// 调度器管理若干具名任务（Job），每个任务拥有若干具名触发器（Trigger），
// 触发器到期时调用任务的 Worker. 特性：
//   - 每个任务一个专属控制循环 goroutine，任务之间互不竞争
//   - 循环按最近的到期时间休眠，无忙等
//   - 变更调用通过写意图协议打断扫描或休眠，不会被长时间休眠阻塞
//   - worker panic 按触发器隔离；控制循环异常时任务降级而非进程崩溃
//   - 统计、钩子、Prometheus 指标、OpenTelemetry 链路追踪
//   - 声明式配置与热更新（Apply）
//
// 未知名称上的操作和重复创建都是静默的空操作.
//
// 示例：
//
//	s := scheduler.MustNew(scheduler.WithLogger(log))
//	defer s.Release()
//
//	s.AddJob("reports", scheduler.WorkerFunc(func(trigger string) {
//	    log.Infof("fired: %s", trigger)
//	}))
//	s.AddTrigger("reports", "hourly-digest", time.Hour)
//	s.AddTrigger("reports", "heartbeat", 5*time.Second)
//
//	s.PauseTrigger("reports", "hourly-digest")
package scheduler

import (
	"context"
	"time"
)

// Scheduler 调度器接口.
type Scheduler interface {
	// AddJob 添加任务并立即启动其控制循环. 同名任务已存在时为空操作.
	AddJob(name string, worker Worker)

	// RemoveJob 移除任务，阻塞直到其控制循环退出.
	RemoveJob(name string)

	// JobNames 返回按名称排序的任务名称.
	JobNames() []string

	// TriggerNames 返回任务的触发器名称，任务不存在时返回空.
	TriggerNames(job string) []string

	// AddTrigger 添加触发器. 间隔按整秒计，最小 1 秒；同名触发器已存在时为空操作.
	AddTrigger(job, trigger string, interval time.Duration)

	// RemoveTrigger 移除触发器.
	RemoveTrigger(job, trigger string)

	// RemoveTriggers 移除任务的全部触发器.
	RemoveTriggers(job string)

	// ChangeTriggerInterval 修改触发器间隔，并从当前时刻重新计时.
	ChangeTriggerInterval(job, trigger string, interval time.Duration)

	// PauseTrigger 暂停触发器.
	PauseTrigger(job, trigger string)

	// ResumeTrigger 恢复触发器.
	ResumeTrigger(job, trigger string)

	// PauseTriggers 暂停任务的全部触发器.
	PauseTriggers(job string)

	// ResumeTriggers 恢复任务的全部触发器.
	ResumeTriggers(job string)

	// Triggers 返回任务的触发器快照.
	Triggers(job string) []TriggerInfo

	// JobState 返回任务状态.
	JobState(job string) (JobState, bool)

	// JobErr 返回任务降级原因，任务不存在或正常时为 nil.
	JobErr(job string) error

	// Stats 返回任务统计信息.
	Stats(job string) (JobStats, bool)

	// Apply 按声明式配置同步任务与触发器.
	Apply(cfg *Config, resolve WorkerResolver) error

	// Release 释放全部任务，阻塞直到所有控制循环退出. 可重复调用.
	Release()

	// Shutdown 同 Release，但等待受 ctx 约束.
	Shutdown(ctx context.Context) error
}

// New 创建调度器.
func New(opts ...Option) (Scheduler, error) {
	return newIntervalScheduler(opts...)
}

// MustNew 创建调度器，失败时 panic.
func MustNew(opts ...Option) Scheduler {
	s, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return s
}
