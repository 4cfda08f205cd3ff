package finance

import (
	"context"
	"math"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/lattice/algorithm/types"
	"github.com/wyfcoding/lattice/xerrors"
)

// DefaultConvergenceSteps 默认的时间步扫描序列。
var DefaultConvergenceSteps = []int{1, 10, 100, 1000}

// ConvergenceRequest 收敛性研究参数。
type ConvergenceRequest struct {
	Security      *ContinuousSecurity
	Strike        float64
	Maturity      float64 // 年
	Type          types.OptionType
	Style         types.ExerciseStyle
	Steps         []int // 为空时使用 DefaultConvergenceSteps
	MaxGoroutines int   // <= 0 表示不限制
}

// ConvergencePoint 单个时间步数下的近似结果。
type ConvergencePoint struct {
	Timesteps    int     `json:"timesteps"`
	Price        float64 `json:"price"`
	Reference    float64 `json:"reference"`
	Error        float64 `json:"error"`
	HasReference bool    `json:"has_reference"`
}

// RunConvergence 并行计算每个时间步数下的近似价格，并与 Black-Scholes 参照值比较。
// 每个任务独立构建自己的二项树，不共享可变状态；任一任务失败即取消其余任务。
func RunConvergence(ctx context.Context, req ConvergenceRequest) ([]ConvergencePoint, error) {
	if req.Security == nil {
		return nil, xerrors.InvalidParameters("continuous security is required")
	}
	if req.Maturity <= 0 || math.IsNaN(req.Maturity) || math.IsInf(req.Maturity, 0) {
		return nil, xerrors.InvalidParameters("maturity must be a positive finite number, got %v", req.Maturity)
	}
	if req.Strike <= 0 || math.IsNaN(req.Strike) || math.IsInf(req.Strike, 0) {
		return nil, xerrors.InvalidParameters("strike must be a positive finite number, got %v", req.Strike)
	}
	if !req.Type.Valid() || !req.Style.Valid() {
		return nil, xerrors.InvalidParameters("unknown option type %q or exercise style %q", req.Type, req.Style)
	}
	steps := req.Steps
	if len(steps) == 0 {
		steps = DefaultConvergenceSteps
	}
	for _, n := range steps {
		if n < 1 {
			return nil, xerrors.InvalidParameters("timesteps must be at least 1, got %d", n)
		}
	}

	// 美式期权没有闭式解，不提供参照值
	hasRef := !req.Style.IsAmerican()
	var reference float64
	if hasRef {
		sec := req.Security
		reference = BlackScholesPrice(req.Type, sec.initialPrice, sec.volatility, req.Strike, req.Maturity, sec.riskFreeRate)
	}

	p := pool.NewWithResults[ConvergencePoint]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	if req.MaxGoroutines > 0 {
		p = p.WithMaxGoroutines(req.MaxGoroutines)
	}

	for _, n := range steps {
		p.Go(func(ctx context.Context) (ConvergencePoint, error) {
			if err := ctx.Err(); err != nil {
				return ConvergencePoint{}, err
			}
			price, err := ApproximatePrice(req.Security, req.Strike, req.Maturity, req.Type, req.Style, n)
			if err != nil {
				return ConvergencePoint{}, err
			}
			point := ConvergencePoint{Timesteps: n, Price: price, HasReference: hasRef}
			if hasRef {
				point.Reference = reference
				point.Error = price - reference
			}
			return point, nil
		})
	}

	points, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timesteps < points[j].Timesteps })
	return points, nil
}
