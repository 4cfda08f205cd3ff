package finance

import (
	"errors"
	"math"
	"math/bits"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/lattice/algorithm/types"
)

func newPricer(t *testing.T, sec *DiscreteSecurity, strike float64, maturity int, optionType types.OptionType, style types.ExerciseStyle) *BinomialPricer {
	t.Helper()
	spec, err := NewOptionSpec(sec, strike, maturity, optionType, style)
	require.NoError(t, err)
	pricer, err := NewBinomialPricer(spec)
	require.NoError(t, err)
	return pricer
}

func mustSecurity(t *testing.T, s0, u, d, r float64) *DiscreteSecurity {
	t.Helper()
	sec, err := NewDiscreteSecurity(s0, u, d, r)
	require.NoError(t, err)
	return sec
}

// bruteForceValue 枚举 (t, i) 到到期日的全部 2^(n−t) 条路径求贴现期望。
func bruteForceValue(sec *DiscreteSecurity, strike float64, maturity int, put bool, t, i int) float64 {
	m := maturity - t
	p := sec.RiskNeutralProbability()
	total := 0.0
	for mask := 0; mask < 1<<m; mask++ {
		ups := bits.OnesCount(uint(mask))
		prob := math.Pow(p, float64(ups)) * math.Pow(1-p, float64(m-ups))
		s := sec.nodePrice(maturity, i+ups)
		payoff := math.Max(s-strike, 0)
		if put {
			payoff = math.Max(strike-s, 0)
		}
		total += prob * payoff
	}
	return total / math.Pow(1+sec.PeriodRate(), float64(m))
}

func TestSinglePeriod(t *testing.T) {
	sec := mustSecurity(t, 100, 1.2, 0.8, 0.05)

	call, err := newPricer(t, sec, 100, 1, types.OptionTypeCall, types.ExerciseEuropean).InitialPrice()
	require.NoError(t, err)
	assert.InDelta(t, 0.625*20/1.05, call, 1e-12)

	put, err := newPricer(t, sec, 100, 1, types.OptionTypePut, types.ExerciseEuropean).InitialPrice()
	require.NoError(t, err)
	assert.InDelta(t, 0.375*20/1.05, put, 1e-12)
}

func TestTwoPeriodAmericanPut(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.02)

	european, err := newPricer(t, sec, 105, 2, types.OptionTypePut, types.ExerciseEuropean).InitialPrice()
	require.NoError(t, err)
	assert.InDelta(t, 6.459054209919262, european, 1e-9)

	american := newPricer(t, sec, 105, 2, types.OptionTypePut, types.ExerciseAmerican)
	price, err := american.InitialPrice()
	require.NoError(t, err)
	assert.InDelta(t, 7.266435986159170, price, 1e-9)

	// 价格 90 的节点提前行权
	row, err := american.ValuesAt(1)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, row[0], 1e-12)
	assert.InDelta(t, 2.4/1.02, row[1], 1e-12)
}

func TestEuropeanMatchesPathEnumeration(t *testing.T) {
	sec := mustSecurity(t, 80, 1.15, 0.9, 0.01)
	const maturity = 8

	for _, optionType := range []types.OptionType{types.OptionTypeCall, types.OptionTypePut} {
		pricer := newPricer(t, sec, 82, maturity, optionType, types.ExerciseEuropean)
		for step := 0; step <= maturity; step++ {
			row, err := pricer.ValuesAt(step)
			require.NoError(t, err)
			require.Len(t, row, step+1)
			for i := range row {
				want := bruteForceValue(sec, 82, maturity, optionType.IsPut(), step, i)
				assert.InDelta(t, want, row[i], 1e-9, "%s t=%d i=%d", optionType, step, i)
			}
		}
	}
}

func TestTerminalRowIsPayoff(t *testing.T) {
	sec := mustSecurity(t, 50, 1.3, 0.75, 0.03)
	pricer := newPricer(t, sec, 55, 6, types.OptionTypePut, types.ExerciseAmerican)

	row, err := pricer.ValuesAt(6)
	require.NoError(t, err)
	for i, v := range row {
		payoff, err := pricer.Payoff(6, i)
		require.NoError(t, err)
		assert.Equal(t, payoff, v)
	}
}

func TestAmericanDominatesEuropeanPut(t *testing.T) {
	sec := mustSecurity(t, 100, 1.08, 0.93, 0.015)
	const maturity = 30

	american := newPricer(t, sec, 100, maturity, types.OptionTypePut, types.ExerciseAmerican).Lattice()
	european := newPricer(t, sec, 100, maturity, types.OptionTypePut, types.ExerciseEuropean).Lattice()

	require.Len(t, american, maturity+1)
	strict := false
	for step := range american {
		for i := range american[step] {
			assert.GreaterOrEqual(t, american[step][i], european[step][i]-1e-12)
			if american[step][i] > european[step][i]+1e-9 {
				strict = true
			}
		}
	}
	assert.True(t, strict, "early exercise should be optimal somewhere for an in-the-money put")
}

func TestAmericanCallEqualsEuropean(t *testing.T) {
	sec := mustSecurity(t, 100, 1.08, 0.93, 0.015)

	american := newPricer(t, sec, 95, 40, types.OptionTypeCall, types.ExerciseAmerican).Lattice()
	european := newPricer(t, sec, 95, 40, types.OptionTypeCall, types.ExerciseEuropean).Lattice()
	for step := range american {
		for i := range american[step] {
			assert.InDelta(t, european[step][i], american[step][i], 1e-9)
		}
	}
}

func TestLatticeMatchesValuesAt(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.02)
	pricer := newPricer(t, sec, 100, 12, types.OptionTypePut, types.ExerciseAmerican)

	lattice := pricer.Lattice()
	for step := range lattice {
		row, err := pricer.ValuesAt(step)
		require.NoError(t, err)
		assert.Equal(t, row, lattice[step])
	}
}

func TestDiscretePutCallParity(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.92, 0.01)
	const maturity, strike = 25, 104.0

	call, err := newPricer(t, sec, strike, maturity, types.OptionTypeCall, types.ExerciseEuropean).InitialPrice()
	require.NoError(t, err)
	put, err := newPricer(t, sec, strike, maturity, types.OptionTypePut, types.ExerciseEuropean).InitialPrice()
	require.NoError(t, err)

	assert.InDelta(t, 100-strike*math.Pow(1.01, -maturity), call-put, 1e-9)
}

func TestZeroMaturity(t *testing.T) {
	sec := mustSecurity(t, 90, 1.1, 0.9, 0.05)

	put := newPricer(t, sec, 100, 0, types.OptionTypePut, types.ExerciseEuropean)
	row, err := put.ValuesAt(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, row)

	call := newPricer(t, sec, 100, 0, types.OptionTypeCall, types.ExerciseAmerican)
	price, err := call.InitialPrice()
	require.NoError(t, err)
	assert.Equal(t, 0.0, price)
}

func TestValuesAtOutOfRange(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.0)
	pricer := newPricer(t, sec, 100, 3, types.OptionTypeCall, types.ExerciseEuropean)

	for _, step := range []int{-1, 4} {
		row, err := pricer.ValuesAt(step)
		assert.Nil(t, row)
		assert.True(t, errors.Is(err, ErrInvalidIndex), "t=%d: %v", step, err)
	}

	_, err := pricer.Payoff(2, 3)
	assert.True(t, errors.Is(err, ErrInvalidIndex))
}

func TestValuesAtReturnsFreshSlices(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.0)
	pricer := newPricer(t, sec, 100, 4, types.OptionTypeCall, types.ExerciseEuropean)

	first, err := pricer.ValuesAt(2)
	require.NoError(t, err)
	first[0] = -1

	second, err := pricer.ValuesAt(2)
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, second[0])
}

func TestValuesAtReusesTable(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.02)
	pricer := newPricer(t, sec, 100, 200, types.OptionTypePut, types.ExerciseAmerican)

	price, err := pricer.InitialPrice()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pricer.sweeps.Load())

	for step := 200; step >= 0; step-- {
		row, err := pricer.ValuesAt(step)
		require.NoError(t, err)
		require.Len(t, row, step+1)
	}
	for range 50 {
		_, err := pricer.ValuesAt(199)
		require.NoError(t, err)
	}
	pricer.Lattice()
	assert.EqualValues(t, 2, pricer.sweeps.Load())

	again, err := pricer.InitialPrice()
	require.NoError(t, err)
	assert.Equal(t, price, again)
	assert.EqualValues(t, 2, pricer.sweeps.Load())
}

func TestValuesAtConcurrent(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.02)
	pricer := newPricer(t, sec, 100, 60, types.OptionTypePut, types.ExerciseAmerican)
	want := newPricer(t, sec, 100, 60, types.OptionTypePut, types.ExerciseAmerican).Lattice()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := g; step <= 60; step += 8 {
				row, err := pricer.ValuesAt(step)
				assert.NoError(t, err)
				assert.Equal(t, want[step], row)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, pricer.sweeps.Load())
}

func TestLatticeReturnsCopy(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.0)
	pricer := newPricer(t, sec, 100, 4, types.OptionTypeCall, types.ExerciseEuropean)

	rows := pricer.Lattice()
	rows[0][0] = -1
	price, err := pricer.InitialPrice()
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, price)
}

func TestNewOptionSpecValidation(t *testing.T) {
	sec := mustSecurity(t, 100, 1.1, 0.9, 0.0)

	tests := []struct {
		name       string
		security   *DiscreteSecurity
		strike     float64
		maturity   int
		optionType types.OptionType
		style      types.ExerciseStyle
	}{
		{"nil security", nil, 100, 1, types.OptionTypeCall, types.ExerciseEuropean},
		{"zero strike", sec, 0, 1, types.OptionTypeCall, types.ExerciseEuropean},
		{"negative maturity", sec, 100, -1, types.OptionTypeCall, types.ExerciseEuropean},
		{"unknown type", sec, 100, 1, types.OptionType("STRADDLE"), types.ExerciseEuropean},
		{"unknown style", sec, 100, 1, types.OptionTypeCall, types.ExerciseStyle("BERMUDAN")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewOptionSpec(tt.security, tt.strike, tt.maturity, tt.optionType, tt.style)
			assert.Nil(t, spec)
			assert.True(t, errors.Is(err, ErrInvalidParameters), "%v", err)
		})
	}

	_, err := NewBinomialPricer(nil)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func BenchmarkAmericanPut1000(b *testing.B) {
	sec, _ := CalibrateLattice(mustContinuous(b, 105, 0.3, 0.1), 0.5, 1000)
	spec, _ := NewOptionSpec(sec, 100, 1000, types.OptionTypePut, types.ExerciseAmerican)
	pricer, _ := NewBinomialPricer(spec)
	b.ResetTimer()
	for b.Loop() {
		_, _ = pricer.InitialPrice()
	}
}
