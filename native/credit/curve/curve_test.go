package curve

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"fixedcredit/native/credit/fixedpoint"
)

const day = uint64(24 * 60 * 60)

func pct(v int64) *big.Int {
	// v is expressed in basis points of a percent (1 = 0.01%).
	out := new(big.Int).Mul(big.NewInt(v), big.NewInt(100_000_000_000_000))
	return out
}

func flatCurve(tenors []uint64, aprsBps []int64) YieldCurve {
	c := YieldCurve{Tenors: tenors}
	for _, bps := range aprsBps {
		c.APRs = append(c.APRs, pct(bps))
		c.MarketRateMultipliers = append(c.MarketRateMultipliers, new(uint256.Int))
	}
	return c
}

func TestIsNull(t *testing.T) {
	require.True(t, YieldCurve{}.IsNull())
	require.False(t, flatCurve([]uint64{day}, []int64{500}).IsNull())
}

func TestValidate(t *testing.T) {
	valid := flatCurve([]uint64{30 * day, 365 * day}, []int64{500, 1000})
	require.NoError(t, Validate(valid, day, 5*365*day))

	require.ErrorIs(t, Validate(YieldCurve{}, day, 365*day), ErrEmptyArray)

	mismatch := valid.Clone()
	mismatch.APRs = mismatch.APRs[:1]
	require.ErrorIs(t, Validate(mismatch, day, 5*365*day), ErrLengthMismatch)

	unordered := flatCurve([]uint64{60 * day, 30 * day}, []int64{500, 1000})
	require.ErrorIs(t, Validate(unordered, day, 5*365*day), ErrTenorsNotStrictlyIncreasing)

	duplicate := flatCurve([]uint64{30 * day, 30 * day}, []int64{500, 1000})
	require.ErrorIs(t, Validate(duplicate, day, 5*365*day), ErrTenorsNotStrictlyIncreasing)

	require.ErrorIs(t, Validate(valid, 31*day, 5*365*day), ErrTenorOutOfRange)
	require.ErrorIs(t, Validate(valid, day, 364*day), ErrTenorOutOfRange)
}

func TestAPRInterpolationFixture(t *testing.T) {
	c := flatCurve([]uint64{30 * day, 365 * day}, []int64{500, 1000})
	apr, err := APR(c, 180*day, VariableRateParams{})
	require.NoError(t, err)

	// 5% + 5% * 150/335, floored.
	expected := new(big.Int).Mul(pct(500), big.NewInt(150))
	expected.Div(expected, big.NewInt(335))
	expected.Add(expected, pct(500))
	require.Equal(t, expected.String(), apr.Dec())

	again, err := APR(c, 180*day, VariableRateParams{})
	require.NoError(t, err)
	require.True(t, apr.Eq(again))

	// ~7.24%
	require.True(t, apr.ToBig().Cmp(pct(723)) > 0)
	require.True(t, apr.ToBig().Cmp(pct(725)) < 0)
}

func TestAPRExactPoints(t *testing.T) {
	c := flatCurve([]uint64{30 * day, 90 * day, 365 * day}, []int64{300, 700, 200})
	for i, tenor := range c.Tenors {
		apr, err := APR(c, tenor, VariableRateParams{})
		require.NoError(t, err)
		adjusted, err := AdjustedAPR(c.APRs[i], c.MarketRateMultipliers[i], VariableRateParams{})
		require.NoError(t, err)
		require.True(t, apr.Eq(adjusted), "tenor %d", tenor)
	}
}

func TestAPRMonotonicBetweenPoints(t *testing.T) {
	c := flatCurve([]uint64{30 * day, 365 * day}, []int64{500, 1000})
	prev := new(uint256.Int)
	for tenor := 30 * day; tenor <= 365*day; tenor += 5 * day {
		apr, err := APR(c, tenor, VariableRateParams{})
		require.NoError(t, err)
		require.False(t, apr.Lt(prev), "non-monotonic at %d", tenor)
		prev = apr
	}

	down := flatCurve([]uint64{30 * day, 365 * day}, []int64{1000, 500})
	prev = new(uint256.Int).Set(fixedpoint.MaxUint256)
	for tenor := 30 * day; tenor <= 365*day; tenor += 5 * day {
		apr, err := APR(down, tenor, VariableRateParams{})
		require.NoError(t, err)
		require.False(t, apr.Gt(prev), "non-monotonic at %d", tenor)
		prev = apr
	}
}

func TestAPROutOfRange(t *testing.T) {
	c := flatCurve([]uint64{30 * day, 365 * day}, []int64{500, 1000})
	_, err := APR(c, 29*day, VariableRateParams{})
	require.ErrorIs(t, err, ErrTenorOutOfRange)
	_, err = APR(c, 366*day, VariableRateParams{})
	require.ErrorIs(t, err, ErrTenorOutOfRange)
}

func TestAdjustedAPRVariableRate(t *testing.T) {
	params := VariableRateParams{
		Rate:              new(uint256.Int).Div(fixedpoint.Percent, uint256.NewInt(25)), // 4%
		UpdatedAt:         1_000,
		StaleRateInterval: 3_600,
		Now:               2_000,
	}
	// 1% + 4% * 0.5 = 3%
	half := new(uint256.Int).Div(fixedpoint.Percent, uint256.NewInt(2))
	apr, err := AdjustedAPR(pct(100), half, params)
	require.NoError(t, err)
	require.Equal(t, pct(300).String(), apr.Dec())

	// -1% + 4% = 3%
	apr, err = AdjustedAPR(pct(-100), fixedpoint.Percent, params)
	require.NoError(t, err)
	require.Equal(t, pct(300).String(), apr.Dec())

	// -5% + 4% fails instead of clamping.
	_, err = AdjustedAPR(pct(-500), fixedpoint.Percent, params)
	require.ErrorIs(t, err, ErrNegativeAPR)

	_, err = AdjustedAPR(pct(-1), new(uint256.Int), params)
	require.ErrorIs(t, err, ErrNegativeAPR)

	stale := params
	stale.Now = params.UpdatedAt + params.StaleRateInterval + 1
	_, err = AdjustedAPR(pct(100), half, stale)
	require.True(t, errors.Is(err, ErrStaleRate))

	never := params
	never.StaleRateInterval = 0
	_, err = AdjustedAPR(pct(100), half, never)
	require.ErrorIs(t, err, ErrStaleRate)

	// The fixed component ignores staleness entirely.
	apr, err = AdjustedAPR(pct(100), new(uint256.Int), never)
	require.NoError(t, err)
	require.Equal(t, pct(100).String(), apr.Dec())
}

func TestRatePerTenor(t *testing.T) {
	apr := new(uint256.Int).Div(fixedpoint.Percent, uint256.NewInt(10)) // 10%
	down, err := RatePerTenor(apr, YearSeconds/2, false)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Div(fixedpoint.Percent, uint256.NewInt(20)).Dec(), down.Dec())

	down, err = RatePerTenor(uint256.NewInt(1), 1, false)
	require.NoError(t, err)
	require.True(t, down.IsZero())
	up, err := RatePerTenor(uint256.NewInt(1), 1, true)
	require.NoError(t, err)
	require.Equal(t, uint64(1), up.Uint64())
}
