package scheduler

import (
	"sync"
	"time"
)

// JobStats 任务触发统计.
type JobStats struct {
	mu            sync.RWMutex
	FireCount     int64         // 触发次数（含 panic）
	PanicCount    int64         // worker panic 次数
	SkipCount     int64         // 被前置钩子跳过的次数
	LastFireAt    time.Time     // 上次触发时间
	LastPanicAt   time.Time     // 上次 panic 时间
	LastError     error         // 上次 panic 错误
	LastTrigger   string        // 上次触发的触发器
	LastDuration  time.Duration // 上次 worker 耗时
	TotalDuration time.Duration // worker 总耗时
}

// Clone 返回统计信息副本.
func (s *JobStats) Clone() JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return JobStats{
		FireCount:     s.FireCount,
		PanicCount:    s.PanicCount,
		SkipCount:     s.SkipCount,
		LastFireAt:    s.LastFireAt,
		LastPanicAt:   s.LastPanicAt,
		LastError:     s.LastError,
		LastTrigger:   s.LastTrigger,
		LastDuration:  s.LastDuration,
		TotalDuration: s.TotalDuration,
	}
}

// recordFire 记录一次 worker 调用.
func (s *JobStats) recordFire(trigger string, at time.Time, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FireCount++
	s.LastFireAt = at
	s.LastTrigger = trigger
	s.LastDuration = duration
	s.TotalDuration += duration
	if err != nil {
		s.PanicCount++
		s.LastPanicAt = at
		s.LastError = err
	}
}

// recordSkip 记录一次跳过.
func (s *JobStats) recordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SkipCount++
}
