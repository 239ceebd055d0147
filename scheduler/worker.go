package scheduler

// Worker 是触发器到期时被调用的回调能力.
//
// Run 在所属任务唯一的控制循环 goroutine 上同步执行，
// 同一任务内的触发永远不会并发；执行缓慢的 Run 会推迟该任务的其他触发器，但不影响其他任务.
//
// Run 期间任务的触发器集合处于加锁状态，因此 Run 内不能同步调用
// 修改同一任务的 Scheduler 方法，否则会死锁；需要时请另起 goroutine.
//
// Run 中的 panic 会被捕获并按触发器隔离，不会中断控制循环.
type Worker interface {
	Run(trigger string)
}

// WorkerFunc 将普通函数适配为 Worker.
type WorkerFunc func(trigger string)

// Run 实现 Worker 接口.
func (f WorkerFunc) Run(trigger string) {
	f(trigger)
}
