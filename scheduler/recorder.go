package scheduler

import "time"

// Recorder 调度器指标记录接口.
//
// metrics.PrometheusCollector 实现了该接口.
type Recorder interface {
	// RecordFire 记录一次 worker 调用及其耗时.
	RecordFire(job, trigger string, duration time.Duration)

	// RecordPanic 记录一次 worker panic.
	RecordPanic(job, trigger string)

	// RecordSkip 记录一次被钩子跳过的触发.
	RecordSkip(job, trigger string)

	// SetJobs 更新任务数量.
	SetJobs(count int)

	// SetTriggers 更新任务的触发器数量.
	SetTriggers(job string, count int)

	// SetDegraded 更新任务降级状态.
	SetDegraded(job string, degraded bool)

	// ForgetJob 删除任务相关的指标序列.
	ForgetJob(job string)
}

type nopRecorder struct{}

func (nopRecorder) RecordFire(string, string, time.Duration) {}
func (nopRecorder) RecordPanic(string, string)               {}
func (nopRecorder) RecordSkip(string, string)                {}
func (nopRecorder) SetJobs(int)                              {}
func (nopRecorder) SetTriggers(string, int)                  {}
func (nopRecorder) SetDegraded(string, bool)                 {}
func (nopRecorder) ForgetJob(string)                         {}
