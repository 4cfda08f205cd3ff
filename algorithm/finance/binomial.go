package finance

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/wyfcoding/lattice/algorithm/types"
	"github.com/wyfcoding/lattice/xerrors"
)

// OptionSpec 期权合约参数，构造后不可变。
type OptionSpec struct {
	security   *DiscreteSecurity
	strike     float64
	maturity   int // 到期期数
	optionType types.OptionType
	style      types.ExerciseStyle
}

// NewOptionSpec 创建期权合约。
func NewOptionSpec(security *DiscreteSecurity, strike float64, maturity int, optionType types.OptionType, style types.ExerciseStyle) (*OptionSpec, error) {
	if security == nil {
		return nil, xerrors.InvalidParameters("security is required")
	}
	if strike <= 0 || math.IsNaN(strike) || math.IsInf(strike, 0) {
		return nil, xerrors.InvalidParameters("strike must be a positive finite number, got %v", strike)
	}
	if maturity < 0 {
		return nil, xerrors.InvalidParameters("maturity must be non-negative, got %d", maturity)
	}
	if !optionType.Valid() {
		return nil, xerrors.InvalidParameters("unknown option type %q", optionType)
	}
	if !style.Valid() {
		return nil, xerrors.InvalidParameters("unknown exercise style %q", style)
	}
	return &OptionSpec{
		security:   security,
		strike:     strike,
		maturity:   maturity,
		optionType: optionType,
		style:      style,
	}, nil
}

// Security 标的证券。
func (o *OptionSpec) Security() *DiscreteSecurity { return o.security }

// Strike 行权价。
func (o *OptionSpec) Strike() float64 { return o.strike }

// Maturity 到期期数。
func (o *OptionSpec) Maturity() int { return o.maturity }

// Type 看涨或看跌。
func (o *OptionSpec) Type() types.OptionType { return o.optionType }

// Style 行权方式。
func (o *OptionSpec) Style() types.ExerciseStyle { return o.style }

// BinomialPricer 在二项树上通过倒推计算期权在各节点的无套利价值。
//
// 首次按时间步查询（ValuesAt、Lattice）时一次倒推生成完整价值表并缓存，之后的查询直接读表，
// 可被多个 goroutine 共享。只需要 InitialPrice 且表尚未生成时走滚动两行的扫描，内存 O(n)。
type BinomialPricer struct {
	spec   *OptionSpec
	p      float64 // 风险中性上行概率
	growth float64 // 1 + r

	once   sync.Once
	table  [][]float64
	built  atomic.Bool
	sweeps atomic.Int64 // 倒推次数
}

// NewBinomialPricer 为给定合约创建定价器。
func NewBinomialPricer(spec *OptionSpec) (*BinomialPricer, error) {
	if spec == nil {
		return nil, xerrors.InvalidParameters("option spec is required")
	}
	return &BinomialPricer{
		spec:   spec,
		p:      spec.security.RiskNeutralProbability(),
		growth: 1 + spec.security.rate,
	}, nil
}

// Spec 返回定价器对应的合约。
func (bp *BinomialPricer) Spec() *OptionSpec { return bp.spec }

// Payoff 节点 (t, i) 的立即行权收益。
func (bp *BinomialPricer) Payoff(t, i int) (float64, error) {
	s, err := bp.spec.security.Price(t, i)
	if err != nil {
		return 0, err
	}
	return bp.intrinsic(s), nil
}

func (bp *BinomialPricer) intrinsic(s float64) float64 {
	if bp.spec.optionType.IsPut() {
		return math.Max(bp.spec.strike-s, 0)
	}
	return math.Max(s-bp.spec.strike, 0)
}

// ValuesAt 返回第 t 步所有节点 i = 0..t 的期权价值，返回的切片归调用方所有。
func (bp *BinomialPricer) ValuesAt(t int) ([]float64, error) {
	if t < 0 || t > bp.spec.maturity {
		return nil, xerrors.InvalidIndex("time step %d outside [0, %d]", t, bp.spec.maturity)
	}
	return append([]float64(nil), bp.rows()[t]...), nil
}

// Lattice 返回完整价值树的副本，rows[t] 含 t+1 个节点。
func (bp *BinomialPricer) Lattice() [][]float64 {
	table := bp.rows()
	rows := make([][]float64, len(table))
	for t, row := range table {
		rows[t] = append([]float64(nil), row...)
	}
	return rows
}

// InitialPrice 期权当前价值，即 ValuesAt(0)[0]。
func (bp *BinomialPricer) InitialPrice() (float64, error) {
	if bp.built.Load() {
		return bp.table[0][0], nil
	}
	return bp.sweep(nil)[0], nil
}

// rows 惰性生成并返回内部价值表，调用方不得修改。
func (bp *BinomialPricer) rows() [][]float64 {
	bp.once.Do(func() {
		table := make([][]float64, bp.spec.maturity+1)
		bp.sweep(func(t int, row []float64) {
			table[t] = append([]float64(nil), row...)
		})
		bp.table = table
		bp.built.Store(true)
	})
	return bp.table
}

// sweep 自到期日倒推至第 0 步，逐行回调 visit，返回第 0 步的价值行。
// 返回值与回调中的切片都是内部缓冲区，下一轮迭代会被覆盖。
func (bp *BinomialPricer) sweep(visit func(t int, row []float64)) []float64 {
	bp.sweeps.Add(1)
	n := bp.spec.maturity
	sec := bp.spec.security
	american := bp.spec.style.IsAmerican()

	cur := make([]float64, n+1)
	next := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		cur[i] = bp.intrinsic(sec.nodePrice(n, i))
	}
	if visit != nil {
		visit(n, cur)
	}

	q := 1 - bp.p
	for t := n - 1; t >= 0; t-- {
		for i := 0; i <= t; i++ {
			value := (bp.p*cur[i+1] + q*cur[i]) / bp.growth
			if american {
				// 持有与行权相等时视为持有
				if exercise := bp.intrinsic(sec.nodePrice(t, i)); exercise > value {
					value = exercise
				}
			}
			next[i] = value
		}
		cur, next = next, cur
		if visit != nil {
			visit(t, cur[:t+1])
		}
	}
	return cur[:1]
}
