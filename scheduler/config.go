package scheduler

import (
	"fmt"
	"time"
)

// Config 声明式调度配置.
//
// 示例（YAML）:
//
//	scheduler:
//	  jobs:
//	    - name: reports
//	      triggers:
//	        - name: heartbeat
//	          interval: 5s
//	        - name: hourly-digest
//	          interval: "@every 1h"
//	          paused: true
type Config struct {
	Jobs []JobConfig `json:"jobs" yaml:"jobs" mapstructure:"jobs"`
}

// JobConfig 任务配置.
type JobConfig struct {
	Name     string          `json:"name" yaml:"name" mapstructure:"name"`
	Triggers []TriggerConfig `json:"triggers" yaml:"triggers" mapstructure:"triggers"`
}

// TriggerConfig 触发器配置.
type TriggerConfig struct {
	// Name 触发器名称.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Interval 触发间隔，Go duration 或 "@every <duration>".
	Interval string `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Paused 是否暂停.
	Paused bool `json:"paused" yaml:"paused" mapstructure:"paused"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	jobs := make(map[string]struct{}, len(c.Jobs))
	for i, jc := range c.Jobs {
		if jc.Name == "" {
			return fmt.Errorf("jobs[%d]: %w", i, ErrJobNameEmpty)
		}
		if _, dup := jobs[jc.Name]; dup {
			return fmt.Errorf("jobs[%d]: %w: %s", i, ErrDuplicateName, jc.Name)
		}
		jobs[jc.Name] = struct{}{}

		triggers := make(map[string]struct{}, len(jc.Triggers))
		for k, tc := range jc.Triggers {
			if tc.Name == "" {
				return fmt.Errorf("jobs[%s].triggers[%d]: %w", jc.Name, k, ErrTriggerNameEmpty)
			}
			if _, dup := triggers[tc.Name]; dup {
				return fmt.Errorf("jobs[%s].triggers[%d]: %w: %s", jc.Name, k, ErrDuplicateName, tc.Name)
			}
			triggers[tc.Name] = struct{}{}

			if _, err := ParseInterval(tc.Interval); err != nil {
				return fmt.Errorf("jobs[%s].triggers[%s]: %w", jc.Name, tc.Name, err)
			}
		}
	}
	return nil
}

// WorkerResolver 为配置中的任务提供 Worker. 返回 nil 表示跳过该任务.
type WorkerResolver func(job string) Worker

// desiredTrigger 解析后的触发器配置.
type desiredTrigger struct {
	interval time.Duration
	paused   bool
}

// Apply 按配置同步任务与触发器.
//
// 配置中不存在的、由 Apply 创建的任务会被移除；通过 AddJob 直接创建的任务不受影响.
// 已有触发器的间隔发生变化时从当前时刻重新计时，间隔不变则保持原有计时.
// 配置验证失败时不做任何修改.
func (s *intervalScheduler) Apply(cfg *Config, resolve WorkerResolver) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	wanted := make(map[string]struct{}, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		wanted[jc.Name] = struct{}{}
	}
	for name := range s.managed {
		if _, ok := wanted[name]; !ok {
			s.RemoveJob(name)
			delete(s.managed, name)
		}
	}

	for _, jc := range cfg.Jobs {
		j := s.lookup(jc.Name)
		if j == nil {
			var w Worker
			if resolve != nil {
				w = resolve(jc.Name)
			}
			if w == nil {
				s.opts.logWarnf("未找到任务 worker，跳过 [job:%s]", jc.Name)
				continue
			}
			s.AddJob(jc.Name, w)
			s.managed[jc.Name] = struct{}{}
			if j = s.lookup(jc.Name); j == nil {
				continue
			}
		}
		s.reconcile(j, jc)
	}

	s.opts.logDebugf("配置已应用 [jobs:%d]", len(cfg.Jobs))
	return nil
}

// reconcile 在一次变更中同步任务的触发器集合.
func (s *intervalScheduler) reconcile(j *job, jc JobConfig) {
	desired := make(map[string]desiredTrigger, len(jc.Triggers))
	for _, tc := range jc.Triggers {
		// 已通过 Validate
		d, _ := ParseInterval(tc.Interval)
		desired[tc.Name] = desiredTrigger{interval: d, paused: tc.Paused}
	}

	j.mutate("apply", func(now time.Time) {
		for name := range j.triggers {
			if _, ok := desired[name]; !ok {
				delete(j.triggers, name)
			}
		}
		for name, dt := range desired {
			t, ok := j.triggers[name]
			if !ok {
				t = newTrigger(dt.interval)
				j.triggers[name] = t
			} else if t.interval != dt.interval {
				t.setInterval(dt.interval, now)
			}
			t.paused = dt.paused
		}
	})
}
