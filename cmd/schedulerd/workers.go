package main

import (
	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/scheduler"
)

// logWorkers 为每个配置的任务提供记录触发日志的 worker.
func logWorkers(log logger.Logger) scheduler.WorkerResolver {
	return func(job string) scheduler.Worker {
		jobLog := log.With(logger.String("job", job))
		return scheduler.WorkerFunc(func(trigger string) {
			jobLog.With(logger.String("trigger", trigger)).Info("[schedulerd] trigger fired")
		})
	}
}
