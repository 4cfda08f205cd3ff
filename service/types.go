package service

import (
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/lattice/algorithm/finance"
)

// LatticeRequest 离散二项模型定价请求。
type LatticeRequest struct {
	InitialPrice   float64 `json:"initial_price" binding:"required,gt=0"`
	Up             float64 `json:"up"            binding:"required,gt=0"`
	Down           float64 `json:"down"          binding:"required,gt=0"`
	Rate           float64 `json:"rate"`
	Strike         float64 `json:"strike"        binding:"required,gt=0"`
	Maturity       int     `json:"maturity"      binding:"gte=0"`
	OptionType     string  `json:"option_type"   binding:"required"`
	Style          string  `json:"style"`
	IncludeLattice bool    `json:"include_lattice"`
}

// LatticeResult 离散模型定价结果。
type LatticeResult struct {
	Price                  float64         `json:"price"`
	Quote                  decimal.Decimal `json:"quote"`
	RiskNeutralProbability float64         `json:"risk_neutral_probability"`
	Lattice                [][]float64     `json:"lattice,omitempty"`
}

// ApproximateRequest 连续时间近似定价请求。
type ApproximateRequest struct {
	InitialPrice float64 `json:"initial_price" binding:"required,gt=0"`
	Volatility   float64 `json:"volatility"    binding:"required,gt=0"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	Strike       float64 `json:"strike"        binding:"required,gt=0"`
	Maturity     float64 `json:"maturity"      binding:"required,gt=0"` // 年
	OptionType   string  `json:"option_type"   binding:"required"`
	Style        string  `json:"style"`
	Timesteps    int     `json:"timesteps"     binding:"required,gte=1"`
}

// ApproximateResult 近似定价结果。欧式期权附带 Black-Scholes 参照值。
type ApproximateResult struct {
	Price          float64          `json:"price"`
	Quote          decimal.Decimal  `json:"quote"`
	Timesteps      int              `json:"timesteps"`
	Reference      *float64         `json:"reference,omitempty"`
	ReferenceQuote *decimal.Decimal `json:"reference_quote,omitempty"`
	Cached         bool             `json:"cached"`
}

// ConvergenceRequest 收敛性研究请求，Steps 为空时使用配置的默认序列。
type ConvergenceRequest struct {
	InitialPrice float64 `json:"initial_price" binding:"required,gt=0"`
	Volatility   float64 `json:"volatility"    binding:"required,gt=0"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	Strike       float64 `json:"strike"        binding:"required,gt=0"`
	Maturity     float64 `json:"maturity"      binding:"required,gt=0"`
	OptionType   string  `json:"option_type"   binding:"required"`
	Style        string  `json:"style"`
	Steps        []int   `json:"steps"         binding:"omitempty,dive,gte=1"`
}

// ConvergenceRow 单个时间步数的结果。
type ConvergenceRow struct {
	finance.ConvergencePoint
	Quote decimal.Decimal `json:"quote"`
}

// ConvergenceResult 收敛性研究结果，按时间步数升序。
type ConvergenceResult struct {
	Rows []ConvergenceRow `json:"rows"`
}
