// Package recovery 提供 panic 捕获功能.
//
// 调度器用它把 worker 回调中的 panic 转换为 *PanicError，
// 使单个触发器的失败不会中断所属任务的控制循环；
// HTTPMiddleware 为管理端接口提供同样的保护.
package recovery

import (
	"fmt"
	"runtime"

	"github.com/Tsukikage7/intervalkit/logger"
)

// Handler 是 panic 处理函数.
//
// 参数:
//   - p: panic 值
//   - stack: 堆栈信息
type Handler func(p any, stack []byte)

// Options 配置选项.
type Options struct {
	// Handler 捕获 panic 后的回调，可为 nil.
	Handler Handler

	// StackSize 堆栈大小，默认 64KB.
	StackSize int

	// StackAll 是否捕获所有 goroutine 的堆栈，默认 false.
	StackAll bool

	// Logger 日志记录器，HTTPMiddleware 必须设置.
	Logger logger.Logger
}

// Option 是配置函数.
type Option func(*Options)

// WithHandler 设置自定义 panic 处理函数.
func WithHandler(h Handler) Option {
	return func(o *Options) {
		o.Handler = h
	}
}

// WithStackSize 设置堆栈大小.
func WithStackSize(size int) Option {
	return func(o *Options) {
		o.StackSize = size
	}
}

// WithStackAll 设置是否捕获所有 goroutine 的堆栈.
func WithStackAll(all bool) Option {
	return func(o *Options) {
		o.StackAll = all
	}
}

// WithLogger 设置日志记录器.
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func defaultOptions() *Options {
	return &Options{
		StackSize: 64 * 1024,
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.StackSize <= 0 {
		o.StackSize = 64 * 1024
	}
	return o
}

// Call 执行 fn，并将其中的 panic 转换为 *PanicError 返回.
//
// fn 正常返回时结果为 nil.
//
// 示例:
//
//	if err := recovery.Call(func() { w.Run(name) }); err != nil {
//	    var pe *recovery.PanicError
//	    errors.As(err, &pe)
//	}
func Call(fn func(), opts ...Option) (err error) {
	defer func() {
		if p := recover(); p != nil {
			o := applyOptions(opts)
			stack := captureStack(o.StackSize, o.StackAll)
			if o.Handler != nil {
				o.Handler(p, stack)
			}
			err = &PanicError{Value: p, Stack: stack}
		}
	}()

	fn()
	return nil
}

// captureStack 捕获堆栈信息.
func captureStack(size int, all bool) []byte {
	stack := make([]byte, size)
	n := runtime.Stack(stack, all)
	return stack[:n]
}

// PanicError 表示 panic 错误.
type PanicError struct {
	// Value 是 panic 的值.
	Value any
	// Stack 是堆栈信息.
	Stack []byte
}

// Error 实现 error 接口.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap 返回原始错误（如果 panic 值是 error）.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
