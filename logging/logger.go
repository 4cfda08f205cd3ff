// Package logging 提供了统一的结构化日志（slog）封装，支持 OpenTelemetry 追踪上下文注入、日志切割与运行时调级。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// defaultLogger 全局默认 Logger，采用单例模式。
	defaultLogger *Logger
	once          sync.Once
	// level 所有由本包创建的 Handler 共享的日志级别。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string
	Module     string
	Level      string
	File       string // 日志文件路径，为空则只输出到 stdout
	Console    bool   // 配置了 File 时是否同时输出到 stdout
	MaxSize    int    // 每个日志文件最大尺寸 (MB)
	MaxBackups int    // 保留旧日志文件的最大个数
	MaxAge     int    // 保留旧日志文件的最大天数
	Compress   bool   // 是否压缩旧日志
}

// Logger 封装 `*slog.Logger`，并携带服务名和模块名。
type Logger struct {
	*slog.Logger
	Service string
	Module  string
}

// TraceHandler 是一个 `slog.Handler` 装饰器，从 context 中提取 trace_id 和 span_id 注入日志记录。
type TraceHandler struct {
	slog.Handler
}

// Handle 实现 `slog.Handler` 接口。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器不丢失。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 保持装饰器不丢失。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将配置中的级别字符串转换为 slog.Level，未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 运行时切换日志级别，对已创建的 Logger 立即生效。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// CurrentLevel 返回当前生效的日志级别。
func CurrentLevel() slog.Level {
	return level.Level()
}

func jsonHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	})
}

// NewFromConfig 创建一个新的 Logger 实例。
// 配置了文件路径时使用 lumberjack 进行日志切割。
func NewFromConfig(cfg Config) *Logger {
	level.Set(ParseLevel(cfg.Level))

	var handler slog.Handler
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		handler = jsonHandler(fileWriter)
		if cfg.Console {
			handler = newFanoutHandler(jsonHandler(os.Stdout), handler)
		}
	} else {
		handler = jsonHandler(os.Stdout)
	}

	return newLogger(handler, cfg.Service, cfg.Module)
}

// NewWithWriter 输出到指定 Writer，便于测试和命令行工具使用。
func NewWithWriter(w io.Writer, service, module string) *Logger {
	return newLogger(jsonHandler(w), service, module)
}

func newLogger(handler slog.Handler, service, module string) *Logger {
	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", service),
		slog.String("module", module),
	)
	return &Logger{Logger: logger, Service: service, Module: module}
}

// With 返回附加了属性的子 Logger。
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), Service: l.Service, Module: l.Module}
}

// InitLogger 初始化全局默认日志记录器，只生效一次。
func InitLogger(cfg Config) {
	once.Do(func() {
		defaultLogger = NewFromConfig(cfg)
		slog.SetDefault(defaultLogger.Logger)
	})
}

// Default 返回默认日志记录器实例
func Default() *Logger {
	InitLogger(Config{Service: "lattice", Module: "default", Level: "info"})
	return defaultLogger
}

// Info 记录 Info 级别日志
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 记录操作耗时，返回的函数在操作结束时调用。
func (l *Logger) LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		l.InfoContext(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}

// LogDuration 使用默认 Logger 记录操作耗时。
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	return Default().LogDuration(ctx, operation, args...)
}
