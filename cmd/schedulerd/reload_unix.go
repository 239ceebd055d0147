//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// reloadSignals 触发配置重载的信号.
func reloadSignals() []os.Signal {
	return []os.Signal{unix.SIGHUP}
}
