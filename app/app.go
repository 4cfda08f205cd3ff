// Package app 管理应用程序生命周期：启动服务器、监听退出信号、优雅关闭与资源清理。
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// App 应用程序容器。
type App struct {
	name   string
	logger *slog.Logger
	opts   options
}

// New 创建应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{name: name, logger: logger, opts: o}
}

// Run 启动所有服务器并阻塞，直到收到 SIGINT/SIGTERM、ctx 取消或任一服务器失败。
// 任一服务器失败会取消其余服务器；返回前执行全部清理函数。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid(), "servers", len(a.opts.servers))

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.opts.servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}
	err := g.Wait()
	if err != nil {
		a.logger.Error("server exited with error", "name", a.name, "error", err)
	} else {
		a.logger.Info("shutting down application", "name", a.name)
	}

	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}

	a.logger.Info("application shut down", "name", a.name)
	return err
}
