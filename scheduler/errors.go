package scheduler

import "errors"

// 预定义错误.
//
// 日常的变更操作（添加、删除、暂停等）不返回错误：未知名称和重复创建都是静默的空操作.
// 以下错误只出现在配置解析、声明式应用和任务降级状态中.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("scheduler: config is nil")

	// ErrJobNameEmpty 任务名称为空.
	ErrJobNameEmpty = errors.New("scheduler: job name is required")

	// ErrTriggerNameEmpty 触发器名称为空.
	ErrTriggerNameEmpty = errors.New("scheduler: trigger name is required")

	// ErrDuplicateName 配置中出现重复名称.
	ErrDuplicateName = errors.New("scheduler: duplicate name")

	// ErrIntervalInvalid 无效的触发间隔.
	ErrIntervalInvalid = errors.New("scheduler: invalid trigger interval")

	// ErrJobDegraded 任务控制循环异常退出，任务已不可用.
	ErrJobDegraded = errors.New("scheduler: job is degraded")

	// ErrFireSkipped 前置钩子阻止了本次触发.
	ErrFireSkipped = errors.New("scheduler: fire skipped by hook")
)
