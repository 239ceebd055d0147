package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// trigger 固定间隔触发器.
//
// 所有字段只在所属任务持有触发器锁时读写.
type trigger struct {
	interval time.Duration
	lastShot time.Time // 零值表示从未触发
	paused   bool

	fires  int64
	panics int64
}

// newTrigger 创建触发器，新触发器创建即到期.
func newTrigger(interval time.Duration) *trigger {
	return &trigger{interval: interval}
}

// isDue 判断触发器在 now 时刻是否到期.
func (t *trigger) isDue(now time.Time) bool {
	return t.lastShot.IsZero() || now.Sub(t.lastShot) >= t.interval
}

// remaining 返回距离下次到期的时间，已到期返回 0.
func (t *trigger) remaining(now time.Time) time.Duration {
	if t.isDue(now) {
		return 0
	}
	return t.interval - now.Sub(t.lastShot)
}

// nextDue 返回下次到期时间，从未触发时返回 now.
func (t *trigger) nextDue(now time.Time) time.Time {
	if t.lastShot.IsZero() {
		return now
	}
	return t.lastShot.Add(t.interval)
}

// setInterval 修改间隔，并从 now 开始重新计时.
func (t *trigger) setInterval(interval time.Duration, now time.Time) {
	t.interval = interval
	t.lastShot = now
}

// TriggerInfo 触发器快照.
type TriggerInfo struct {
	Name       string
	Interval   time.Duration
	Paused     bool
	LastShot   time.Time // 零值表示从未触发
	NextDue    time.Time
	FireCount  int64
	PanicCount int64
}

func (t *trigger) info(name string, now time.Time) TriggerInfo {
	return TriggerInfo{
		Name:       name,
		Interval:   t.interval,
		Paused:     t.paused,
		LastShot:   t.lastShot,
		NextDue:    t.nextDue(now),
		FireCount:  t.fires,
		PanicCount: t.panics,
	}
}

// NormalizeInterval 将间隔规整为整秒，最小 1 秒.
//
// 非正数间隔返回 ErrIntervalInvalid.
func NormalizeInterval(d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrIntervalInvalid, d)
	}
	return cron.Every(d).Delay, nil
}

// ParseInterval 解析触发间隔.
//
// 支持的格式:
//   - Go duration: "5s", "1m30s", "2h"
//   - 固定间隔描述符: "@every 5s"
//
// 其他 cron 表达式（如 "@hourly"、"*/5 * * * *"）按日历调度处理，不受支持.
func ParseInterval(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("%w: empty", ErrIntervalInvalid)
	}

	if strings.HasPrefix(spec, "@") {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrIntervalInvalid, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("%w: %q is a calendar schedule", ErrIntervalInvalid, spec)
		}
		// cron.Every 会把非正数间隔抬到 1 秒，这里与 Go duration 形式保持一致
		raw, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every")))
		if err != nil || raw <= 0 {
			return 0, fmt.Errorf("%w: %s", ErrIntervalInvalid, spec)
		}
		return every.Delay, nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		if strings.ContainsAny(spec, "*/,") || len(strings.Fields(spec)) > 1 {
			return 0, fmt.Errorf("%w: %q is a calendar schedule", ErrIntervalInvalid, spec)
		}
		return 0, fmt.Errorf("%w: %v", ErrIntervalInvalid, err)
	}
	return NormalizeInterval(d)
}
