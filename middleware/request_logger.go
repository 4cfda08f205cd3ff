package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lattice/contextx"
)

// Logger 访问日志中间件。trace_id 由 logging.TraceHandler 注入，5xx 以 Error 级别记录。
func Logger(logger *slog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}

		ctx := c.Request.Context()
		status := c.Writer.Status()
		lvl := slog.LevelInfo
		if status >= 500 {
			lvl = slog.LevelError
		}
		logger.Log(ctx, lvl, "http request",
			"request_id", contextx.GetRequestID(ctx),
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", c.Request.URL.RawQuery,
			"ip", c.ClientIP(),
			"cost", time.Since(start),
			"errors", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}
