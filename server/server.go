// Package server 提供 HTTP 服务器的生命周期管理与定价 API 路由.
package server

import "context"

// Server 定义服务器生命周期契约.
type Server interface {
	// Start 阻塞运行，直到 ctx 取消或服务异常退出.
	Start(ctx context.Context) error
	// Stop 优雅停止，等待在途请求完成.
	Stop(ctx context.Context) error
}
