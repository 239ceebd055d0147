package recovery

import (
	"net/http"

	"github.com/Tsukikage7/intervalkit/logger"
)

// HTTPMiddleware 返回 HTTP panic 恢复中间件.
//
// handler panic 时记录堆栈、调用 Handler（如果设置）并返回 500.
// http.ErrAbortHandler 按 net/http 的约定继续向上抛出.
//
// 示例:
//
//	mux := http.NewServeMux()
//	handler := recovery.HTTPMiddleware(recovery.WithLogger(log))(mux)
func HTTPMiddleware(opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)
	if o.Logger == nil {
		panic("recovery: logger is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				stack := captureStack(o.StackSize, o.StackAll)
				o.Logger.WithContext(r.Context()).With(
					logger.Any("panic", p),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(stack)),
				).Error("[HTTP] panic recovered")

				if o.Handler != nil {
					o.Handler(p, stack)
				}

				w.WriteHeader(http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
