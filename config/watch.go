package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch 监听配置文件变化并重新加载，阻塞直到 ctx 结束.
//
// 监听的是文件所在目录，以兼容编辑器先写临时文件再改名的保存方式.
// 连续的文件事件在 Debounce 时长内合并为一次加载.
// 每次加载（无论成功与否）都会回调 onChange，失败时 cfg 为 nil.
//
// 示例:
//
//	go config.Watch(ctx, path, func(cfg *AppConfig, err error) {
//	    if err != nil {
//	        log.Warnf("reload failed: %v", err)
//	        return
//	    }
//	    apply(cfg)
//	})
func Watch[T any](ctx context.Context, configPath string, onChange func(cfg *T, err error), opts ...Option) error {
	options := buildOptions(opts)

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	dir, file := filepath.Dir(abs), filepath.Base(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}

	var (
		timer   *time.Timer
		timeout <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(options.Debounce)
			} else {
				timer.Reset(options.Debounce)
			}
			timeout = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange(nil, fmt.Errorf("%w: %w", ErrReadConfig, err))

		case <-timeout:
			timeout = nil
			cfg, err := Load[T](abs, opts...)
			onChange(cfg, err)
		}
	}
}
