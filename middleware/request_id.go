package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lattice/contextx"
	"github.com/wyfcoding/lattice/idgen"
)

// HeaderXRequestID 请求 ID 头.
const HeaderXRequestID = "X-Request-ID"

// RequestID 透传或生成请求 ID，写入 context 与响应头.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = idgen.GenIDString()
		}

		c.Request = c.Request.WithContext(contextx.WithRequestID(c.Request.Context(), requestID))
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}
