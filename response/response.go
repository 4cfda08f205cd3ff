// Package response 提供了统一的 HTTP 响应封装 {code, msg, data}，支持业务错误码与 gRPC 状态码映射。
package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lattice/tracing"
	"github.com/wyfcoding/lattice/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusClientClosedRequest 客户端在响应前断开连接。
const StatusClientClosedRequest = 499

// Body 统一响应体。
type Body struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Data    any    `json:"data,omitempty"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"` // 仅错误响应携带
}

// Success 发送一个标准的成功响应：HTTP 200，业务码 0。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: "success", Data: data})
}

// SuccessWithRawData 发送原始数据 (不包装 code 和 msg)，用于健康检查等系统接口。
func SuccessWithRawData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 发送错误响应。
// 优先识别 xerrors 业务错误，其次是 gRPC Status 与 context 错误，无法识别时返回 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	if xe, ok := xerrors.FromError(err); ok {
		c.JSON(xe.HTTPStatus(), Body{Code: xe.Code, Msg: xe.Message, Detail: xe.Detail, TraceID: traceID(c)})
		return
	}

	statusCode := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, context.Canceled):
		statusCode, msg = StatusClientClosedRequest, "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		statusCode, msg = http.StatusGatewayTimeout, "request timed out"
	default:
		if st, ok := status.FromError(err); ok {
			statusCode, msg = grpcCodeToHTTP(st.Code()), st.Message()
		}
	}
	c.JSON(statusCode, Body{Code: statusCode, Msg: msg, TraceID: traceID(c)})
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, Body{Code: status, Msg: msg, Detail: detail, TraceID: traceID(c)})
}

func traceID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	return tracing.GetTraceID(c.Request.Context())
}

// grpcCodeToHTTP 执行 gRPC 到 HTTP 的标准协议映射。
func grpcCodeToHTTP(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return StatusClientClosedRequest
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
