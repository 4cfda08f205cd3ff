// Package service 组合定价核心与缓存、指标、追踪、日志，对外提供带十进制报价的定价服务。
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/lattice/algorithm/finance"
	"github.com/wyfcoding/lattice/algorithm/types"
	"github.com/wyfcoding/lattice/cache"
	"github.com/wyfcoding/lattice/config"
	"github.com/wyfcoding/lattice/logging"
	"github.com/wyfcoding/lattice/metrics"
	"github.com/wyfcoding/lattice/tracing"
	"github.com/wyfcoding/lattice/xerrors"
)

// 操作名，用作指标标签与 span 名称。
const (
	OpLattice     = "lattice"
	OpApproximate = "approximate"
	OpConvergence = "convergence"
)

// PricingService 定价服务。cache 和 metrics 可为 nil。
type PricingService struct {
	mu      sync.RWMutex
	cfg     config.PricingConfig
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewPricingService 创建定价服务。
func NewPricingService(cfg config.PricingConfig, c cache.Cache, m *metrics.Metrics, logger *logging.Logger) *PricingService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PricingService{
		cfg:     cfg,
		cache:   c,
		metrics: m,
		logger:  logger.With("component", "pricing"),
	}
}

// UpdateConfig 热更新定价参数。
func (s *PricingService) UpdateConfig(cfg config.PricingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *PricingService) config() config.PricingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// observe 开启 span，返回在操作结束时记录指标、span 状态与失败日志的函数。
func (s *PricingService) observe(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := tracing.StartSpan(ctx, "pricing."+op)
	start := time.Now()
	return ctx, func(errp *error) {
		err := *errp
		s.metrics.ObservePricing(op, err, time.Since(start))
		if err != nil {
			tracing.SetError(ctx, err)
			s.logger.WarnContext(ctx, "pricing failed", "operation", op, "error", err)
		}
		span.End()
	}
}

func (s *PricingService) quote(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(s.config().QuotePlaces)
}

func parseContract(optionType, style string) (types.OptionType, types.ExerciseStyle, error) {
	t := types.ParseOptionType(optionType)
	if t == "" {
		return "", "", xerrors.InvalidParameters("unknown option type %q", optionType)
	}
	st := types.ParseExerciseStyle(style)
	if st == "" {
		return "", "", xerrors.InvalidParameters("unknown exercise style %q", style)
	}
	return t, st, nil
}

func (s *PricingService) checkSteps(steps ...int) error {
	limit := s.config().MaxTimesteps
	for _, n := range steps {
		if n > limit {
			return xerrors.InvalidParameters("timesteps %d exceeds the configured limit %d", n, limit)
		}
	}
	return nil
}

// PriceLattice 在给定的离散二项模型上定价。
func (s *PricingService) PriceLattice(ctx context.Context, req LatticeRequest) (res *LatticeResult, err error) {
	ctx, done := s.observe(ctx, OpLattice)
	defer done(&err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	optionType, style, err := parseContract(req.OptionType, req.Style)
	if err != nil {
		return nil, err
	}
	if err := s.checkSteps(req.Maturity); err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "option.type", string(optionType))
	tracing.AddTag(ctx, "option.style", string(style))
	tracing.AddTag(ctx, "lattice.maturity", req.Maturity)

	sec, err := finance.NewDiscreteSecurity(req.InitialPrice, req.Up, req.Down, req.Rate)
	if err != nil {
		return nil, err
	}
	spec, err := finance.NewOptionSpec(sec, req.Strike, req.Maturity, optionType, style)
	if err != nil {
		return nil, err
	}
	pricer, err := finance.NewBinomialPricer(spec)
	if err != nil {
		return nil, err
	}

	res = &LatticeResult{RiskNeutralProbability: sec.RiskNeutralProbability()}
	if req.IncludeLattice {
		res.Lattice = pricer.Lattice()
		res.Price = res.Lattice[0][0]
	} else if res.Price, err = pricer.InitialPrice(); err != nil {
		return nil, err
	}
	res.Quote = s.quote(res.Price)
	return res, nil
}

type approximateEntry struct {
	Price float64 `json:"price"`
}

func approximateKey(req ApproximateRequest, t types.OptionType, st types.ExerciseStyle) string {
	return fmt.Sprintf("approx|%s|%s|%g|%g|%g|%g|%g|%d",
		t, st, req.InitialPrice, req.Volatility, req.RiskFreeRate, req.Strike, req.Maturity, req.Timesteps)
}

// Approximate 用 CRR 二项树近似连续时间期权价格，结果按规范化参数缓存。
func (s *PricingService) Approximate(ctx context.Context, req ApproximateRequest) (res *ApproximateResult, err error) {
	ctx, done := s.observe(ctx, OpApproximate)
	defer done(&err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	optionType, style, err := parseContract(req.OptionType, req.Style)
	if err != nil {
		return nil, err
	}
	if err := s.checkSteps(req.Timesteps); err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "option.type", string(optionType))
	tracing.AddTag(ctx, "option.style", string(style))
	tracing.AddTag(ctx, "lattice.timesteps", req.Timesteps)

	sec, err := finance.NewContinuousSecurity(req.InitialPrice, req.Volatility, req.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	res = &ApproximateResult{Timesteps: req.Timesteps}
	key := approximateKey(req, optionType, style)
	if price, ok := s.lookup(ctx, key); ok {
		res.Price, res.Cached = price, true
	} else {
		res.Price, err = finance.ApproximatePrice(sec, req.Strike, req.Maturity, optionType, style, req.Timesteps)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, res.Price)
	}
	res.Quote = s.quote(res.Price)

	if !style.IsAmerican() {
		ref := finance.BlackScholesPrice(optionType, req.InitialPrice, req.Volatility, req.Strike, req.Maturity, req.RiskFreeRate)
		refQuote := s.quote(ref)
		res.Reference, res.ReferenceQuote = &ref, &refQuote
	}
	return res, nil
}

func (s *PricingService) lookup(ctx context.Context, key string) (float64, bool) {
	if s.cache == nil {
		return 0, false
	}
	var entry approximateEntry
	err := s.cache.Get(ctx, key, &entry)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		}
		s.metrics.ObserveCache(false)
		return 0, false
	}
	s.metrics.ObserveCache(true)
	return entry.Price, true
}

func (s *PricingService) store(ctx context.Context, key string, price float64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, approximateEntry{Price: price}); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

// Convergence 对一组时间步数并行计算近似价格，并与 Black-Scholes 参照值比较。
func (s *PricingService) Convergence(ctx context.Context, req ConvergenceRequest) (res *ConvergenceResult, err error) {
	ctx, done := s.observe(ctx, OpConvergence)
	defer done(&err)

	optionType, style, err := parseContract(req.OptionType, req.Style)
	if err != nil {
		return nil, err
	}
	cfg := s.config()
	steps := req.Steps
	if len(steps) == 0 {
		steps = cfg.DefaultSteps
	}
	if err := s.checkSteps(steps...); err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "convergence.points", len(steps))

	sec, err := finance.NewContinuousSecurity(req.InitialPrice, req.Volatility, req.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	defer s.logger.LogDuration(ctx, "convergence study", "points", len(steps))()
	points, err := finance.RunConvergence(ctx, finance.ConvergenceRequest{
		Security:      sec,
		Strike:        req.Strike,
		Maturity:      req.Maturity,
		Type:          optionType,
		Style:         style,
		Steps:         steps,
		MaxGoroutines: cfg.MaxGoroutines,
	})
	if err != nil {
		return nil, err
	}

	res = &ConvergenceResult{Rows: make([]ConvergenceRow, len(points))}
	for i, p := range points {
		res.Rows[i] = ConvergenceRow{ConvergencePoint: p, Quote: s.quote(p.Price)}
	}
	return res, nil
}
