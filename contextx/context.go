// Package contextx 提供请求级上下文数据的存取.
package contextx

import "context"

type requestIDKey struct{}

// WithRequestID 将请求 ID 写入上下文.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID 读取请求 ID，不存在时返回空串.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
