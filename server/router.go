package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lattice/config"
	"github.com/wyfcoding/lattice/health"
	"github.com/wyfcoding/lattice/limiter"
	"github.com/wyfcoding/lattice/logging"
	"github.com/wyfcoding/lattice/metrics"
	"github.com/wyfcoding/lattice/middleware"
	"github.com/wyfcoding/lattice/response"
	"github.com/wyfcoding/lattice/service"
	"github.com/wyfcoding/lattice/xerrors"
)

// Pricer 是 HTTP 层依赖的定价能力.
type Pricer interface {
	PriceLattice(ctx context.Context, req service.LatticeRequest) (*service.LatticeResult, error)
	Approximate(ctx context.Context, req service.ApproximateRequest) (*service.ApproximateResult, error)
	Convergence(ctx context.Context, req service.ConvergenceRequest) (*service.ConvergenceResult, error)
}

// RouterDeps 路由依赖。Metrics、Limiter 与 Health 可为 nil.
type RouterDeps struct {
	Config  config.Config
	Pricer  Pricer
	Metrics *metrics.Metrics
	Limiter limiter.Limiter
	Health  *health.Registry
	Logger  *logging.Logger
	Version string
}

// NewRouter 构建 Gin 引擎并注册中间件与路由.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(logger.Logger),
		middleware.RequestID(),
	)
	if cfg.Tracing.Enabled {
		engine.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName))
	}
	engine.Use(
		middleware.Logger(logger.Logger, "/health", "/ready", cfg.Metrics.Path),
		middleware.HTTPMetricsMiddleware(deps.Metrics, "/health", "/ready", cfg.Metrics.Path),
	)

	engine.GET("/health", func(c *gin.Context) {
		response.SuccessWithRawData(c, gin.H{"status": "ok", "service": cfg.Server.Name, "version": deps.Version})
	})
	engine.GET("/ready", func(c *gin.Context) {
		if deps.Health == nil {
			response.SuccessWithRawData(c, gin.H{"status": "ok"})
			return
		}
		results, err := deps.Health.Check(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "checks": results})
			return
		}
		response.SuccessWithRawData(c, gin.H{"status": "ok", "checks": results})
	})
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		engine.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}

	h := &handler{pricer: deps.Pricer}
	v1 := engine.Group("/v1")
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(deps.Limiter))
	}
	v1.Use(
		middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes),
		middleware.TimeoutMiddleware(cfg.Server.HTTP.RequestTimeout),
	)
	v1.POST("/lattice/price", h.priceLattice)
	v1.POST("/continuous/price", h.approximate)
	v1.POST("/continuous/convergence", h.convergence)

	engine.NoRoute(func(c *gin.Context) {
		response.ErrorWithStatus(c, http.StatusNotFound, "not found", c.Request.URL.Path)
	})
	return engine
}

type handler struct {
	pricer Pricer
}

// bind 解析 JSON 请求体，失败时统一转换为参数错误.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(err)
		response.Error(c, xerrors.InvalidParameters("malformed request: %v", err))
		return false
	}
	return true
}

func reply[T any](c *gin.Context, res T, err error) {
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *handler) priceLattice(c *gin.Context) {
	var req service.LatticeRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.pricer.PriceLattice(c.Request.Context(), req)
	reply(c, res, err)
}

func (h *handler) approximate(c *gin.Context) {
	var req service.ApproximateRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.pricer.Approximate(c.Request.Context(), req)
	reply(c, res, err)
}

func (h *handler) convergence(c *gin.Context) {
	var req service.ConvergenceRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.pricer.Convergence(c.Request.Context(), req)
	reply(c, res, err)
}
