// Package curve implements the per-user term structure used to quote fixed
// rates for arbitrary tenors.
package curve

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// YearSeconds is the day-count basis for APR to rate-per-tenor conversion.
const YearSeconds uint64 = 365 * 24 * 60 * 60

var (
	ErrEmptyArray                  = errors.New("curve: empty array")
	ErrLengthMismatch              = errors.New("curve: array length mismatch")
	ErrTenorsNotStrictlyIncreasing = errors.New("curve: tenors not strictly increasing")
	ErrTenorOutOfRange             = errors.New("curve: tenor out of range")
	ErrNilRate                     = errors.New("curve: nil rate entry")
	ErrStaleRate                   = errors.New("curve: variable rate is stale")
	ErrNegativeAPR                 = errors.New("curve: negative APR")
	ErrOverflow                    = errors.New("curve: APR overflow")
)

// YieldCurve maps tenors (seconds) to fixed APRs plus a multiplier on the
// variable reference rate. APRs are signed 18-decimal values so a curve can sit
// below the reference rate; multipliers are 18-decimal with zero disabling the
// variable component.
type YieldCurve struct {
	Tenors                []uint64
	APRs                  []*big.Int
	MarketRateMultipliers []*uint256.Int
}

// VariableRateParams snapshots the reference rate for a single evaluation.
type VariableRateParams struct {
	// Rate is the reference borrow rate, 18 decimals.
	Rate *uint256.Int
	// UpdatedAt is the unix time the rate was last pushed.
	UpdatedAt uint64
	// StaleRateInterval is the maximum accepted age in seconds. Zero means
	// the rate is always considered stale.
	StaleRateInterval uint64
	// Now is the evaluation time.
	Now uint64
}

// IsNull reports whether the curve is the empty "no offer" sentinel.
func (c YieldCurve) IsNull() bool {
	return len(c.Tenors) == 0 && len(c.APRs) == 0 && len(c.MarketRateMultipliers) == 0
}

// Clone returns a deep copy so an order can hold an immutable snapshot.
func (c YieldCurve) Clone() YieldCurve {
	clone := YieldCurve{
		Tenors:                append([]uint64(nil), c.Tenors...),
		APRs:                  make([]*big.Int, len(c.APRs)),
		MarketRateMultipliers: make([]*uint256.Int, len(c.MarketRateMultipliers)),
	}
	for i, apr := range c.APRs {
		if apr != nil {
			clone.APRs[i] = new(big.Int).Set(apr)
		}
	}
	for i, m := range c.MarketRateMultipliers {
		if m != nil {
			clone.MarketRateMultipliers[i] = new(uint256.Int).Set(m)
		}
	}
	if len(c.Tenors) == 0 {
		clone.Tenors = nil
	}
	if len(c.APRs) == 0 {
		clone.APRs = nil
	}
	if len(c.MarketRateMultipliers) == 0 {
		clone.MarketRateMultipliers = nil
	}
	return clone
}

// Validate checks the structural invariants of a curve against the permitted
// tenor range.
func Validate(c YieldCurve, minTenor, maxTenor uint64) error {
	if len(c.Tenors) == 0 || len(c.APRs) == 0 || len(c.MarketRateMultipliers) == 0 {
		return ErrEmptyArray
	}
	if len(c.Tenors) != len(c.APRs) || len(c.Tenors) != len(c.MarketRateMultipliers) {
		return ErrLengthMismatch
	}
	for i := range c.APRs {
		if c.APRs[i] == nil || c.MarketRateMultipliers[i] == nil {
			return ErrNilRate
		}
	}
	for i := 1; i < len(c.Tenors); i++ {
		if c.Tenors[i-1] >= c.Tenors[i] {
			return ErrTenorsNotStrictlyIncreasing
		}
	}
	if c.Tenors[0] < minTenor || c.Tenors[len(c.Tenors)-1] > maxTenor {
		return ErrTenorOutOfRange
	}
	return nil
}

// APR evaluates the curve at tenor. Exact points return the adjusted APR at
// that point; interior tenors interpolate linearly between the adjusted APRs
// of the bracketing points, rounding down.
func APR(c YieldCurve, tenor uint64, params VariableRateParams) (*uint256.Int, error) {
	if len(c.Tenors) == 0 || len(c.Tenors) != len(c.APRs) || len(c.Tenors) != len(c.MarketRateMultipliers) {
		return nil, ErrEmptyArray
	}
	low, high := fixedpoint.BinarySearch(c.Tenors, tenor)
	if low == fixedpoint.NotFound {
		return nil, ErrTenorOutOfRange
	}
	y0, err := AdjustedAPR(c.APRs[low], c.MarketRateMultipliers[low], params)
	if err != nil {
		return nil, err
	}
	if low == high {
		return y0, nil
	}
	y1, err := AdjustedAPR(c.APRs[high], c.MarketRateMultipliers[high], params)
	if err != nil {
		return nil, err
	}
	x0, x1 := c.Tenors[low], c.Tenors[high]

	// y0 + (y1-y0)*(tenor-x0)/(x1-x0), floored for both slopes.
	delta := new(big.Int).Sub(y1.ToBig(), y0.ToBig())
	delta.Mul(delta, new(big.Int).SetUint64(tenor-x0))
	delta.Div(delta, new(big.Int).SetUint64(x1-x0))
	result := new(big.Int).Add(y0.ToBig(), delta)
	if result.Sign() < 0 {
		return nil, ErrNegativeAPR
	}
	out, overflow := uint256.FromBig(result)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// AdjustedAPR applies the variable-rate component to a single curve point.
func AdjustedAPR(apr *big.Int, multiplier *uint256.Int, params VariableRateParams) (*uint256.Int, error) {
	if apr == nil || multiplier == nil {
		return nil, ErrNilRate
	}
	if multiplier.IsZero() {
		if apr.Sign() < 0 {
			return nil, ErrNegativeAPR
		}
		out, overflow := uint256.FromBig(apr)
		if overflow {
			return nil, ErrOverflow
		}
		return out, nil
	}
	if IsStale(params) {
		return nil, ErrStaleRate
	}
	rate := params.Rate
	if rate == nil {
		rate = new(uint256.Int)
	}
	variable, err := fixedpoint.MulDivDown(rate, multiplier, fixedpoint.Percent)
	if err != nil {
		return nil, ErrOverflow
	}
	sum := new(big.Int).Add(apr, variable.ToBig())
	if sum.Sign() < 0 {
		return nil, ErrNegativeAPR
	}
	out, overflow := uint256.FromBig(sum)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// IsStale reports whether the reference rate is too old to use. A zero
// interval marks the rate as permanently stale.
func IsStale(params VariableRateParams) bool {
	if params.StaleRateInterval == 0 {
		return true
	}
	if params.Now <= params.UpdatedAt {
		return false
	}
	return params.Now-params.UpdatedAt > params.StaleRateInterval
}

// RatePerTenor converts an APR into the simple-interest rate accrued over
// tenor seconds.
func RatePerTenor(apr *uint256.Int, tenor uint64, roundUp bool) (*uint256.Int, error) {
	t := uint256.NewInt(tenor)
	year := uint256.NewInt(YearSeconds)
	if roundUp {
		return fixedpoint.MulDivUp(apr, t, year)
	}
	return fixedpoint.MulDivDown(apr, t, year)
}
