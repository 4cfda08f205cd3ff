package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lattice/limiter"
	"github.com/wyfcoding/lattice/response"
	"github.com/wyfcoding/lattice/xerrors"
)

// RateLimitMiddleware 以客户端 IP 为标识的限流中间件。
// 限流器内部故障时放行请求并记录告警。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.Error(c, xerrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
