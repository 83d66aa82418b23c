// Package fixedpoint provides the rounding-aware 256-bit arithmetic used by the
// credit ledger. Amounts are unsigned integers; rates and ratios are 18-decimal
// fixed point values where Percent (1e18) represents 100%.
package fixedpoint

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var (
	// ErrDivisionByZero is returned when a mulDiv denominator is zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrDecimalsTooHigh marks tokens with more than 18 decimals.
	ErrDecimalsTooHigh = errors.New("fixedpoint: token decimals above 18")
)

// NotFound is the sentinel index returned by BinarySearch for values outside
// the searched range.
const NotFound = math.MaxInt

// WadDecimals is the decimals count of 18-decimal fixed point values.
const WadDecimals = 18

var (
	// Percent is 100% in 18-decimal fixed point.
	Percent = uint256.NewInt(1_000_000_000_000_000_000)
	// Ray is 1.0 with 27 decimals, used by the liquidity index.
	Ray = new(uint256.Int).Mul(Percent, uint256.NewInt(1_000_000_000))
	// MaxUint256 is the largest representable value.
	MaxUint256 = new(uint256.Int).SetAllOne()
)

// MulDivDown returns floor(x*y/d) computed with a 512-bit intermediate.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDivUp returns ceil(x*y/d) computed with a 512-bit intermediate.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	if x.IsZero() || y.IsZero() {
		return out, nil
	}
	// ceil differs from floor only when x*y is not a multiple of d.
	if !new(uint256.Int).MulMod(x, y, d).IsZero() {
		if out.Eq(MaxUint256) {
			return nil, ErrOverflow
		}
		out.AddUint64(out, 1)
	}
	return out, nil
}

// AmountToWad rescales an amount expressed with the given decimals to 18
// decimals. Decimals above 18 are rejected.
func AmountToWad(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if decimals > WadDecimals {
		return nil, ErrDecimalsTooHigh
	}
	scale := pow10(WadDecimals - decimals)
	out, overflow := new(uint256.Int).MulOverflow(amount, scale)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return pow10(n)
}

func pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Min returns a copy of the smaller value.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// Max returns a copy of the larger value.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// CheckedSub returns a-b or ErrOverflow when b > a.
func CheckedSub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// BinarySearch locates value inside the strictly increasing slice. It returns
// (i, i) when sorted[i] == value, the bracketing pair (low, high) with
// sorted[low] < value < sorted[high] for interior values, and
// (NotFound, NotFound) when value lies outside [sorted[0], sorted[last]] or the
// slice is empty.
func BinarySearch(sorted []uint64, value uint64) (int, int) {
	if len(sorted) == 0 || value < sorted[0] || value > sorted[len(sorted)-1] {
		return NotFound, NotFound
	}
	low, high := 0, len(sorted)-1
	for low <= high {
		mid := low + (high-low)/2
		switch {
		case sorted[mid] == value:
			return mid, mid
		case sorted[mid] < value:
			low = mid + 1
		default:
			high = mid - 1
		}
	}
	// The loop exits with sorted[high] < value < sorted[low].
	return high, low
}
