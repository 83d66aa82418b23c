package pool

import "math/big"

// InterestModel shapes the variable borrow rate from pool utilisation. The
// rate the pool quotes feeds the variable component of every yield curve.
type InterestModel struct {
	// BaseRate is the borrow APR at zero utilisation.
	BaseRate *big.Rat
	// Slope1 is the APR increase per unit of utilisation up to Kink.
	Slope1 *big.Rat
	// Slope2 is the additional APR increase beyond Kink.
	Slope2 *big.Rat
	// Kink is the utilisation where the slope changes.
	Kink *big.Rat
}

// NewInterestModel builds a model from decimal inputs, e.g. 0.02 for 2%.
func NewInterestModel(baseRate, slope1, slope2, kink float64) *InterestModel {
	m := &InterestModel{
		BaseRate: new(big.Rat),
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Kink:     new(big.Rat),
	}
	m.BaseRate.SetFloat64(baseRate)
	m.Slope1.SetFloat64(slope1)
	m.Slope2.SetFloat64(slope2)
	m.Kink.SetFloat64(kink)
	return m
}

// DefaultInterestModel is a kinked curve with a modest base rate.
var DefaultInterestModel = NewInterestModel(0.02, 0.15, 0.6, 0.8)

// Clone returns a deep copy of the model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return &InterestModel{
		BaseRate: cloneRat(m.BaseRate),
		Slope1:   cloneRat(m.Slope1),
		Slope2:   cloneRat(m.Slope2),
		Kink:     cloneRat(m.Kink),
	}
}

// Utilisation is borrowed / supplied, zero when the pool is empty.
func (m *InterestModel) Utilisation(borrowed, supplied *big.Int) *big.Rat {
	if borrowed == nil || borrowed.Sign() == 0 || supplied == nil || supplied.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(borrowed, supplied)
}

// BorrowAPR evaluates the kinked curve at the current utilisation.
func (m *InterestModel) BorrowAPR(borrowed, supplied *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	u := m.Utilisation(borrowed, supplied)
	if u.Sign() == 0 {
		return rate
	}
	kink := cloneRat(m.Kink)
	if kink.Sign() == 0 || u.Cmp(kink) <= 0 {
		return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope1), u))
	}
	rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope1), kink))
	excess := new(big.Rat).Sub(u, kink)
	return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope2), excess))
}

// SupplyAPY is the borrow APR scaled by utilisation, net of the reserve
// factor expressed in basis points.
func (m *InterestModel) SupplyAPY(borrowed, supplied *big.Int, reserveFactorBps uint64) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	u := m.Utilisation(borrowed, supplied)
	if u.Sign() == 0 {
		return new(big.Rat)
	}
	borrowAPR := m.BorrowAPR(borrowed, supplied)
	keep := new(big.Rat).Sub(big.NewRat(1, 1), big.NewRat(int64(reserveFactorBps), 10_000))
	if keep.Sign() < 0 {
		keep.SetInt64(0)
	}
	out := new(big.Rat).Mul(borrowAPR, u)
	return out.Mul(out, keep)
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}
