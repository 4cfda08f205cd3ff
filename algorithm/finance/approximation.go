package finance

import (
	"math"

	"github.com/wyfcoding/lattice/algorithm/types"
	"github.com/wyfcoding/lattice/xerrors"
)

// CalibrateLattice 按 Cox-Ross-Rubinstein 方式把连续时间证券映射为 timesteps 期的离散证券：
// delta = T/n，u = e^(σ√delta)，d = 1/u，单期利率 r·delta。
func CalibrateLattice(sec *ContinuousSecurity, maturity float64, timesteps int) (*DiscreteSecurity, error) {
	if sec == nil {
		return nil, xerrors.InvalidParameters("continuous security is required")
	}
	if timesteps < 1 {
		return nil, xerrors.InvalidParameters("timesteps must be at least 1, got %d", timesteps)
	}
	if maturity <= 0 || math.IsNaN(maturity) || math.IsInf(maturity, 0) {
		return nil, xerrors.InvalidParameters("maturity must be a positive finite number, got %v", maturity)
	}

	delta := maturity / float64(timesteps)
	step := sec.volatility * math.Sqrt(delta)
	return NewDiscreteSecurity(sec.initialPrice, math.Exp(step), math.Exp(-step), sec.riskFreeRate*delta)
}

// ApproximatePrice 用 timesteps 期二项树近似连续时间期权价格。
// timesteps 趋于无穷时欧式期权价格收敛到 Black-Scholes 值，但收敛既不单调也不快。
func ApproximatePrice(sec *ContinuousSecurity, strike, maturity float64, optionType types.OptionType, style types.ExerciseStyle, timesteps int) (float64, error) {
	pricer, err := approximationPricer(sec, strike, maturity, optionType, style, timesteps)
	if err != nil {
		return 0, err
	}
	return pricer.InitialPrice()
}

func approximationPricer(sec *ContinuousSecurity, strike, maturity float64, optionType types.OptionType, style types.ExerciseStyle, timesteps int) (*BinomialPricer, error) {
	discrete, err := CalibrateLattice(sec, maturity, timesteps)
	if err != nil {
		return nil, err
	}
	spec, err := NewOptionSpec(discrete, strike, timesteps, optionType, style)
	if err != nil {
		return nil, err
	}
	return NewBinomialPricer(spec)
}
