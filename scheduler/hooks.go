package scheduler

import (
	"context"
	"time"
)

// FireContext 一次触发的上下文.
type FireContext struct {
	// Job 任务名称.
	Job string

	// JobID 任务实例 ID，同名任务被删除后重建会得到新的 ID.
	JobID string

	// Trigger 触发器名称.
	Trigger string

	// Interval 触发器间隔.
	Interval time.Duration

	// StartTime 本次触发时间，同时写入触发器的 lastShot.
	StartTime time.Time

	// Duration worker 耗时（仅在 AfterFire/OnPanic 中有值）.
	Duration time.Duration

	// Error worker panic 转换成的错误（仅在 AfterFire/OnPanic 中有值）.
	Error error

	// Skipped 是否被前置钩子跳过.
	Skipped bool

	// SkipReason 跳过原因.
	SkipReason string
}

// BeforeFireHook 触发前回调.
// 返回 error 将跳过本次 worker 调用，触发器仍按已触发计时.
type BeforeFireHook func(ctx context.Context, fc *FireContext) error

// AfterFireHook 触发后回调（无论 worker 是否 panic 都会调用）.
type AfterFireHook func(ctx context.Context, fc *FireContext)

// OnPanicHook worker panic 回调.
type OnPanicHook func(ctx context.Context, fc *FireContext)

// OnSkipHook 触发被跳过回调.
type OnSkipHook func(ctx context.Context, fc *FireContext)

// OnDegradedHook 任务降级回调.
type OnDegradedHook func(job string, err error)

// Hooks 钩子集合.
//
// 钩子在任务控制循环上同步执行，持有触发器锁；钩子本身的 panic 会使任务降级.
type Hooks struct {
	BeforeFire []BeforeFireHook
	AfterFire  []AfterFireHook
	OnPanic    []OnPanicHook
	OnSkip     []OnSkipHook
	OnDegraded []OnDegradedHook
}

func (h *Hooks) runBeforeHooks(ctx context.Context, fc *FireContext) error {
	if h == nil {
		return nil
	}
	for _, hook := range h.BeforeFire {
		if err := hook(ctx, fc); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) runAfterHooks(ctx context.Context, fc *FireContext) {
	if h == nil {
		return
	}
	for _, hook := range h.AfterFire {
		hook(ctx, fc)
	}
}

func (h *Hooks) runPanicHooks(ctx context.Context, fc *FireContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnPanic {
		hook(ctx, fc)
	}
}

func (h *Hooks) runSkipHooks(ctx context.Context, fc *FireContext) {
	if h == nil {
		return
	}
	for _, hook := range h.OnSkip {
		hook(ctx, fc)
	}
}

func (h *Hooks) runDegradedHooks(job string, err error) {
	if h == nil {
		return
	}
	for _, hook := range h.OnDegraded {
		hook(job, err)
	}
}

// HooksBuilder 钩子构建器.
type HooksBuilder struct {
	hooks *Hooks
}

// NewHooks 创建钩子构建器.
func NewHooks() *HooksBuilder {
	return &HooksBuilder{
		hooks: &Hooks{},
	}
}

// BeforeFire 添加前置钩子.
func (b *HooksBuilder) BeforeFire(hook BeforeFireHook) *HooksBuilder {
	b.hooks.BeforeFire = append(b.hooks.BeforeFire, hook)
	return b
}

// AfterFire 添加后置钩子.
func (b *HooksBuilder) AfterFire(hook AfterFireHook) *HooksBuilder {
	b.hooks.AfterFire = append(b.hooks.AfterFire, hook)
	return b
}

// OnPanic 添加 panic 钩子.
func (b *HooksBuilder) OnPanic(hook OnPanicHook) *HooksBuilder {
	b.hooks.OnPanic = append(b.hooks.OnPanic, hook)
	return b
}

// OnSkip 添加跳过钩子.
func (b *HooksBuilder) OnSkip(hook OnSkipHook) *HooksBuilder {
	b.hooks.OnSkip = append(b.hooks.OnSkip, hook)
	return b
}

// OnDegraded 添加降级钩子.
func (b *HooksBuilder) OnDegraded(hook OnDegradedHook) *HooksBuilder {
	b.hooks.OnDegraded = append(b.hooks.OnDegraded, hook)
	return b
}

// Build 构建钩子.
func (b *HooksBuilder) Build() *Hooks {
	return b.hooks
}
