package main

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/Tsukikage7/intervalkit/logger"
)

// notifier 向 systemd 报告服务状态. 未运行在 systemd 下时所有调用为空操作.
type notifier struct {
	log  logger.Logger
	send func(state string) (bool, error)
}

func newNotifier(log logger.Logger) *notifier {
	return &notifier{
		log: log,
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

func (n *notifier) notify(state string) {
	if n == nil {
		return
	}
	if _, err := n.send(state); err != nil {
		n.log.With(logger.String("state", state), logger.Err(err)).Warn("[schedulerd] sd_notify failed")
	}
}

func (n *notifier) ready()     { n.notify(daemon.SdNotifyReady) }
func (n *notifier) reloading() { n.notify(daemon.SdNotifyReloading) }
func (n *notifier) stopping()  { n.notify(daemon.SdNotifyStopping) }

// watchdog 按 WATCHDOG_USEC 的一半周期发送心跳，阻塞直到 ctx 结束.
func (n *notifier) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}

// systemdComponent 在依赖的组件就绪后报告就绪，关闭时报告停止.
type systemdComponent struct {
	n       *notifier
	waitFor []<-chan struct{}
}

func (c *systemdComponent) Name() string { return "systemd" }

func (c *systemdComponent) Start(ctx context.Context) error {
	for _, ch := range c.waitFor {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil
		}
	}
	c.n.ready()
	c.n.watchdog(ctx)
	<-ctx.Done()
	return nil
}

func (c *systemdComponent) Stop(context.Context) error {
	c.n.stopping()
	return nil
}
