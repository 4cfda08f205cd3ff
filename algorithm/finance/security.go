// Package finance - 二项树期权定价：离散证券、倒推定价器与连续时间近似。
package finance

import (
	"math"
	"math/rand/v2"

	"github.com/wyfcoding/lattice/xerrors"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidParameters 参数违反约束。
	ErrInvalidParameters = xerrors.ErrInvalidParameters
	// ErrInvalidIndex 时间步或节点越界。
	ErrInvalidIndex = xerrors.ErrInvalidIndex
)

// DiscreteSecurity 多期二项模型下的标的证券，构造后不可变。
type DiscreteSecurity struct {
	initialPrice float64 // S0
	up           float64 // 单期上行因子 u
	down         float64 // 单期下行因子 d
	rate         float64 // 单期无风险利率 r
}

// NewDiscreteSecurity 创建离散证券，要求 u > d 且 d <= 1+r <= u。
func NewDiscreteSecurity(initialPrice, up, down, rate float64) (*DiscreteSecurity, error) {
	if !finite(initialPrice, up, down, rate) {
		return nil, xerrors.InvalidParameters("non-finite input: s0=%v u=%v d=%v r=%v", initialPrice, up, down, rate)
	}
	if initialPrice <= 0 {
		return nil, xerrors.InvalidParameters("initial price must be positive, got %v", initialPrice)
	}
	if up <= down {
		return nil, xerrors.InvalidParameters("up factor must exceed down factor, got u=%v d=%v", up, down)
	}
	if growth := 1 + rate; growth < down || growth > up {
		return nil, xerrors.InvalidParameters("no-arbitrage bound violated: need d <= 1+r <= u, got d=%v 1+r=%v u=%v", down, growth, up)
	}
	return &DiscreteSecurity{
		initialPrice: initialPrice,
		up:           up,
		down:         down,
		rate:         rate,
	}, nil
}

// InitialPrice 初始价格 S0。
func (s *DiscreteSecurity) InitialPrice() float64 { return s.initialPrice }

// Up 单期上行因子 u。
func (s *DiscreteSecurity) Up() float64 { return s.up }

// Down 单期下行因子 d。
func (s *DiscreteSecurity) Down() float64 { return s.down }

// PeriodRate 单期无风险利率 r。
func (s *DiscreteSecurity) PeriodRate() float64 { return s.rate }

// Price 返回第 t 步、上行 i 次的节点价格 S0·u^i·d^(t−i)。
func (s *DiscreteSecurity) Price(t, i int) (float64, error) {
	if t < 0 || i < 0 || i > t {
		return 0, xerrors.InvalidIndex("node (t=%d, i=%d) outside 0 <= i <= t", t, i)
	}
	return s.nodePrice(t, i), nil
}

// nodePrice 不做越界检查，调用方保证 0 <= i <= t。
func (s *DiscreteSecurity) nodePrice(t, i int) float64 {
	return s.initialPrice * math.Pow(s.up, float64(i)) * math.Pow(s.down, float64(t-i))
}

// RiskNeutralProbability 风险中性上行概率 p = (1+r−d)/(u−d)，由构造约束保证落在 [0, 1]。
func (s *DiscreteSecurity) RiskNeutralProbability() float64 {
	return (1 + s.rate - s.down) / (s.up - s.down)
}

// SamplePrice 在风险中性测度下抽样第 t 步的价格：X ~ Binomial(t, p)，返回 S0·u^X·d^(t−X)。
func (s *DiscreteSecurity) SamplePrice(src rand.Source, t int) (float64, error) {
	if t < 0 {
		return 0, xerrors.InvalidIndex("time step must be non-negative, got %d", t)
	}
	if src == nil {
		return 0, xerrors.InvalidParameters("random source is required")
	}
	p := s.RiskNeutralProbability()
	var ups int
	switch {
	case t == 0 || p <= 0:
		ups = 0
	case p >= 1:
		ups = t
	default:
		draw := distuv.Binomial{N: float64(t), P: p, Src: src}
		ups = int(math.Round(draw.Rand()))
	}
	return s.nodePrice(t, ups), nil
}

// ContinuousSecurity 几何布朗运动下的标的证券。
type ContinuousSecurity struct {
	initialPrice float64
	volatility   float64
	riskFreeRate float64 // 连续复利
}

// NewContinuousSecurity 创建连续时间证券，波动率必须为正。
func NewContinuousSecurity(initialPrice, volatility, riskFreeRate float64) (*ContinuousSecurity, error) {
	if !finite(initialPrice, volatility, riskFreeRate) {
		return nil, xerrors.InvalidParameters("non-finite input: s0=%v sigma=%v r=%v", initialPrice, volatility, riskFreeRate)
	}
	if initialPrice <= 0 {
		return nil, xerrors.InvalidParameters("initial price must be positive, got %v", initialPrice)
	}
	if volatility <= 0 {
		return nil, xerrors.InvalidParameters("volatility must be positive, got %v", volatility)
	}
	return &ContinuousSecurity{
		initialPrice: initialPrice,
		volatility:   volatility,
		riskFreeRate: riskFreeRate,
	}, nil
}

// InitialPrice 初始价格 S0。
func (s *ContinuousSecurity) InitialPrice() float64 { return s.initialPrice }

// Volatility 年化波动率 σ。
func (s *ContinuousSecurity) Volatility() float64 { return s.volatility }

// RiskFreeRate 年化连续复利无风险利率。
func (s *ContinuousSecurity) RiskFreeRate() float64 { return s.riskFreeRate }

// RiskNeutralDrift 对数价格的风险中性漂移 r − σ²/2。
func (s *ContinuousSecurity) RiskNeutralDrift() float64 {
	return s.riskFreeRate - s.volatility*s.volatility/2
}

// SamplePrice 抽样 t 时刻价格：X ~ Normal(drift·t, σ·√t)，返回 S0·exp(X)。
func (s *ContinuousSecurity) SamplePrice(src rand.Source, t float64) (float64, error) {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, xerrors.InvalidIndex("time must be a non-negative finite number, got %v", t)
	}
	if src == nil {
		return 0, xerrors.InvalidParameters("random source is required")
	}
	if t == 0 {
		return s.initialPrice, nil
	}
	draw := distuv.Normal{
		Mu:    s.RiskNeutralDrift() * t,
		Sigma: s.volatility * math.Sqrt(t),
		Src:   src,
	}
	return s.initialPrice * math.Exp(draw.Rand()), nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
