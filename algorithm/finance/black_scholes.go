package finance

import (
	"math"

	"github.com/wyfcoding/lattice/algorithm/types"
	"gonum.org/v1/gonum/stat/distuv"
)

// BlackScholesCall 欧式看涨期权的 Black-Scholes 闭式价格，仅作为二项树收敛的参照。
// t 或 volatility 非正时返回内在价值。
func BlackScholesCall(s0, volatility, strike, t, rate float64) float64 {
	if t <= 0 || volatility <= 0 {
		return math.Max(s0-strike, 0)
	}
	d1, d2 := blackScholesD(s0, volatility, strike, t, rate)
	return s0*distuv.UnitNormal.CDF(d1) - strike*math.Exp(-rate*t)*distuv.UnitNormal.CDF(d2)
}

// BlackScholesPut 欧式看跌期权的 Black-Scholes 闭式价格。
func BlackScholesPut(s0, volatility, strike, t, rate float64) float64 {
	if t <= 0 || volatility <= 0 {
		return math.Max(strike-s0, 0)
	}
	d1, d2 := blackScholesD(s0, volatility, strike, t, rate)
	return strike*math.Exp(-rate*t)*distuv.UnitNormal.CDF(-d2) - s0*distuv.UnitNormal.CDF(-d1)
}

// BlackScholesPrice 按期权类型分派。
func BlackScholesPrice(optionType types.OptionType, s0, volatility, strike, t, rate float64) float64 {
	if optionType.IsPut() {
		return BlackScholesPut(s0, volatility, strike, t, rate)
	}
	return BlackScholesCall(s0, volatility, strike, t, rate)
}

func blackScholesD(s0, volatility, strike, t, rate float64) (d1, d2 float64) {
	sqrtT := math.Sqrt(t)
	d1 = (math.Log(s0/strike) + (rate+0.5*volatility*volatility)*t) / (volatility * sqrtT)
	d2 = d1 - volatility*sqrtT
	return d1, d2
}
