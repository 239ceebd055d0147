package scheduler

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// intervalScheduler 任务目录，将每个公开操作路由到对应任务.
type intervalScheduler struct {
	opts *options

	mu   sync.RWMutex
	jobs map[string]*job

	// managed 由 Apply 创建的任务，Apply 只会移除这些任务.
	applyMu sync.Mutex
	managed map[string]struct{}
}

// newIntervalScheduler 创建调度器.
func newIntervalScheduler(opts ...Option) (*intervalScheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &intervalScheduler{
		opts:    o,
		jobs:    make(map[string]*job),
		managed: make(map[string]struct{}),
	}, nil
}

// lookup 查找任务.
func (s *intervalScheduler) lookup(name string) *job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[name]
}

// AddJob 添加任务.
func (s *intervalScheduler) AddJob(name string, worker Worker) {
	if name == "" || worker == nil {
		s.opts.logWarnf("忽略无效任务 [job:%q] [worker:%v]", name, worker != nil)
		return
	}

	s.mu.Lock()
	if _, exists := s.jobs[name]; exists {
		s.mu.Unlock()
		s.opts.logDebugf("任务已存在，忽略 [job:%s]", name)
		return
	}
	j := newJob(name, worker, s.opts)
	s.jobs[name] = j
	count := len(s.jobs)
	j.start()
	s.mu.Unlock()

	s.opts.recorder.SetJobs(count)
	s.opts.recorder.SetTriggers(name, 0)
	s.opts.recorder.SetDegraded(name, false)
	s.opts.logDebugf("任务已添加 [job:%s] [id:%s]", name, j.id)
}

// RemoveJob 移除任务.
func (s *intervalScheduler) RemoveJob(name string) {
	s.mu.Lock()
	j, exists := s.jobs[name]
	if exists {
		delete(s.jobs, name)
	}
	count := len(s.jobs)
	s.mu.Unlock()

	if !exists {
		return
	}

	j.release()
	s.opts.recorder.SetJobs(count)
	s.opts.recorder.ForgetJob(name)
	s.opts.logDebugf("任务已移除 [job:%s] [id:%s]", name, j.id)
}

// JobNames 返回任务名称.
func (s *intervalScheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.jobs))
}

// TriggerNames 返回触发器名称.
func (s *intervalScheduler) TriggerNames(job string) []string {
	if j := s.lookup(job); j != nil {
		return j.triggerNames()
	}
	return []string{}
}

// AddTrigger 添加触发器.
func (s *intervalScheduler) AddTrigger(job, trigger string, interval time.Duration) {
	if trigger == "" {
		s.opts.logWarnf("忽略无效触发器 [job:%s]: %v", job, ErrTriggerNameEmpty)
		return
	}
	d, err := NormalizeInterval(interval)
	if err != nil {
		s.opts.logWarnf("忽略无效触发器 [job:%s] [trigger:%s]: %v", job, trigger, err)
		return
	}
	if j := s.lookup(job); j != nil {
		j.addTrigger(trigger, d)
	}
}

// RemoveTrigger 移除触发器.
func (s *intervalScheduler) RemoveTrigger(job, trigger string) {
	if j := s.lookup(job); j != nil {
		j.removeTrigger(trigger)
	}
}

// RemoveTriggers 移除全部触发器.
func (s *intervalScheduler) RemoveTriggers(job string) {
	if j := s.lookup(job); j != nil {
		j.removeTriggers()
	}
}

// ChangeTriggerInterval 修改触发器间隔.
func (s *intervalScheduler) ChangeTriggerInterval(job, trigger string, interval time.Duration) {
	d, err := NormalizeInterval(interval)
	if err != nil {
		s.opts.logWarnf("忽略无效间隔 [job:%s] [trigger:%s]: %v", job, trigger, err)
		return
	}
	if j := s.lookup(job); j != nil {
		j.changeTriggerInterval(trigger, d)
	}
}

// PauseTrigger 暂停触发器.
func (s *intervalScheduler) PauseTrigger(job, trigger string) {
	if j := s.lookup(job); j != nil {
		j.setPaused(trigger, true)
	}
}

// ResumeTrigger 恢复触发器.
func (s *intervalScheduler) ResumeTrigger(job, trigger string) {
	if j := s.lookup(job); j != nil {
		j.setPaused(trigger, false)
	}
}

// PauseTriggers 暂停全部触发器.
func (s *intervalScheduler) PauseTriggers(job string) {
	if j := s.lookup(job); j != nil {
		j.setAllPaused(true)
	}
}

// ResumeTriggers 恢复全部触发器.
func (s *intervalScheduler) ResumeTriggers(job string) {
	if j := s.lookup(job); j != nil {
		j.setAllPaused(false)
	}
}

// Triggers 返回触发器快照.
func (s *intervalScheduler) Triggers(job string) []TriggerInfo {
	if j := s.lookup(job); j != nil {
		return j.triggerInfos()
	}
	return []TriggerInfo{}
}

// JobState 返回任务状态.
func (s *intervalScheduler) JobState(job string) (JobState, bool) {
	if j := s.lookup(job); j != nil {
		return j.State(), true
	}
	return 0, false
}

// JobErr 返回任务降级原因.
func (s *intervalScheduler) JobErr(job string) error {
	if j := s.lookup(job); j != nil {
		return j.Err()
	}
	return nil
}

// Stats 返回任务统计.
func (s *intervalScheduler) Stats(job string) (JobStats, bool) {
	if j := s.lookup(job); j != nil {
		return j.stats.Clone(), true
	}
	return JobStats{}, false
}

// takeAll 清空目录并返回全部任务.
func (s *intervalScheduler) takeAll() []*job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := slices.Collect(maps.Values(s.jobs))
	clear(s.jobs)
	return jobs
}

// Release 释放全部任务.
func (s *intervalScheduler) Release() {
	jobs := s.takeAll()
	if len(jobs) == 0 {
		return
	}

	// 先统一请求退出，使各任务的退出等待并行进行
	for _, j := range jobs {
		j.stop()
	}
	for _, j := range jobs {
		j.release()
		s.opts.recorder.ForgetJob(j.name)
	}
	s.opts.recorder.SetJobs(0)
	s.opts.logDebugf("调度器已释放 [jobs:%d]", len(jobs))
}

// Shutdown 优雅关闭.
func (s *intervalScheduler) Shutdown(ctx context.Context) error {
	jobs := s.takeAll()
	for _, j := range jobs {
		j.stop()
	}
	s.opts.recorder.SetJobs(0)

	var wg sync.WaitGroup
	errs := make(chan error, len(jobs))
	for _, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := j.shutdown(ctx); err != nil {
				s.opts.logWarnf("等待任务退出超时 [job:%s] [id:%s]", j.name, j.id)
				errs <- err
				return
			}
			s.opts.recorder.ForgetJob(j.name)
		}()
	}
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}
	s.opts.logDebugf("调度器优雅关闭完成 [jobs:%d]", len(jobs))
	return nil
}
