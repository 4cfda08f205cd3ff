// latticed 提供二项树期权定价 HTTP 服务，或一次性输出收敛性研究结果。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/wyfcoding/lattice/app"
	"github.com/wyfcoding/lattice/cache"
	"github.com/wyfcoding/lattice/config"
	"github.com/wyfcoding/lattice/health"
	"github.com/wyfcoding/lattice/idgen"
	"github.com/wyfcoding/lattice/limiter"
	"github.com/wyfcoding/lattice/logging"
	"github.com/wyfcoding/lattice/metrics"
	"github.com/wyfcoding/lattice/server"
	"github.com/wyfcoding/lattice/service"
	"github.com/wyfcoding/lattice/tracing"
	"golang.org/x/time/rate"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the TOML config file (built-in defaults when empty)")
	mode := flag.String("mode", "serve", "serve | study")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	switch *mode {
	case "serve":
		err = serve(ctx, cfg, *configPath)
	case "study":
		err = study(ctx, cfg, os.Stdout)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		slog.Error("latticed exited with error", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

// newLimiter 按配置的模式创建限流器，模式在进程生命周期内不变，热更新只调整速率。
func newLimiter(c config.RateLimitConfig) limiter.Dynamic {
	if c.Mode == config.RateLimitGlobal {
		return limiter.NewLocalLimiter(rate.Limit(c.Rate), c.Burst)
	}
	return limiter.NewKeyedLimiter(rate.Limit(c.Rate), c.Burst, 0)
}

func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	logging.InitLogger(logging.Config{
		Service:    cfg.Server.Name,
		Module:     "latticed",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Console:    cfg.Log.Console,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logger := logging.Default()
	config.PrintWithMask(cfg)

	if err := idgen.Init(cfg.Server.NodeID); err != nil {
		return err
	}

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics(cfg.Server.Name)
	m.RegisterBuildInfo(cfg.Server.Name, version)

	var resultCache cache.Cache
	if cfg.Cache.Enabled {
		bc, err := cache.NewBigCache(ctx, cfg.Cache.TTL, cfg.Cache.MaxMB, cfg.Cache.Shards)
		if err != nil {
			return err
		}
		resultCache = bc.WithPrefix("pricing")
		defer bc.Close()
	}

	svc := service.NewPricingService(cfg.Pricing, resultCache, m, logger)

	checks := health.NewRegistry(2 * time.Second)
	checks.Register("pricing", func(ctx context.Context) error {
		_, err := svc.PriceLattice(ctx, service.LatticeRequest{
			InitialPrice: 100, Up: 1.1, Down: 0.9, Strike: 100, Maturity: 1, OptionType: "CALL",
		})
		return err
	})
	if resultCache != nil {
		checks.Register("cache", health.CacheChecker(resultCache))
	}

	var rl limiter.Dynamic
	deps := server.RouterDeps{Config: *cfg, Pricer: svc, Metrics: m, Health: checks, Logger: logger, Version: version}
	if cfg.RateLimit.Enabled {
		rl = newLimiter(cfg.RateLimit)
		deps.Limiter = rl
	}

	if configPath != "" {
		config.RegisterReloadHook(func(c *config.Config) {
			svc.UpdateConfig(c.Pricing)
			if rl != nil {
				rl.Update(rate.Limit(c.RateLimit.Rate), c.RateLimit.Burst)
			}
		})
		config.Watch(configPath)
	}

	httpServer := server.NewGinServer(server.NewRouter(deps), cfg.Server.HTTP, logger.Logger)
	return app.New(cfg.Server.Name, logger.Logger,
		app.WithServer(httpServer),
		app.WithCleanup(func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
			defer cancel()
			if err := shutdownTracer(sctx); err != nil {
				logger.Error("tracer shutdown failed", "error", err)
			}
		}),
	).Run(ctx)
}

// study 对参照期权 (S0=105, σ=0.3, r=0.1, K=100, T=0.5) 输出欧式看涨的收敛表。
func study(ctx context.Context, cfg *config.Config, out io.Writer) error {
	svc := service.NewPricingService(cfg.Pricing, nil, nil, logging.NewWithWriter(io.Discard, cfg.Server.Name, "study"))
	res, err := svc.Convergence(ctx, service.ConvergenceRequest{
		InitialPrice: 105,
		Volatility:   0.3,
		RiskFreeRate: 0.1,
		Strike:       100,
		Maturity:     0.5,
		OptionType:   "CALL",
		Style:        "EUROPEAN",
		Steps:        cfg.Pricing.DefaultSteps,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%10s  %14s  %14s  %12s\n", "timesteps", "lattice", "black-scholes", "error")
	for _, row := range res.Rows {
		fmt.Fprintf(out, "%10d  %14s  %14.6f  %12.3e\n", row.Timesteps, row.Quote.StringFixed(cfg.Pricing.QuotePlaces), row.Reference, row.Error)
	}
	return nil
}
