package pool

import (
	"math/big"

	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

const yearSeconds = 365 * 24 * 60 * 60

var (
	rayBig  = fixedpoint.Ray.ToBig()
	halfRay = new(big.Int).Rsh(rayBig, 1)
)

func rayMul(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	return product.Quo(product, rayBig)
}

func halfUp(v *big.Int) *big.Int {
	return new(big.Int).Rsh(v, 1)
}

// ratToScaled rounds r*scale half up.
func ratToScaled(r *big.Rat, scale *big.Int) *big.Int {
	if r == nil || r.Sign() == 0 {
		return new(big.Int)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	num, den := scaled.Num(), scaled.Denom()
	return new(big.Int).Quo(new(big.Int).Add(num, halfUp(den)), den)
}

// linearFactor is 1 + rate*elapsed/year in ray precision.
func linearFactor(rate *big.Rat, elapsed uint64) *big.Int {
	if rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return new(big.Int).Set(rayBig)
	}
	accrued := new(big.Rat).Mul(rate, new(big.Rat).SetFrac(new(big.Int).SetUint64(elapsed), big.NewInt(yearSeconds)))
	return ratToScaled(new(big.Rat).Add(big.NewRat(1, 1), accrued), rayBig)
}

func toUint256(v *big.Int) *uint256.Int {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).Set(fixedpoint.MaxUint256)
	}
	return out
}
