package logger

import "errors"

// ErrOpenFile 打开日志文件失败.
var ErrOpenFile = errors.New("logger: failed to open log file")
