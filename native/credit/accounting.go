package credit

import (
	"fmt"

	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
	"fixedcredit/native/credit/fixedpoint"
)

// swapFeePercent is the swap fee APR prorated to tenor, rounded up.
func (e *Engine) swapFeePercent(tenor uint64) (*uint256.Int, error) {
	return fixedpoint.MulDivUp(e.cfg.Fees.SwapFeeAPR, uint256.NewInt(tenor), uint256.NewInt(curve.YearSeconds))
}

func (e *Engine) swapFee(cash *uint256.Int, tenor uint64) (*uint256.Int, error) {
	pct, err := e.swapFeePercent(tenor)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDivUp(cash, pct, fixedpoint.Percent)
}

func onePlus(rate *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.CheckedAdd(fixedpoint.Percent, rate)
}

// getCashAmountOut prices a sale of creditAmountIn: the seller receives the
// discounted cash less the swap fee, and the fragmentation fee when only part
// of maxCredit is sold.
func (e *Engine) getCashAmountOut(creditAmountIn, maxCredit, ratePerTenor *uint256.Int, tenor uint64) (*uint256.Int, *uint256.Int, error) {
	denominator, err := onePlus(ratePerTenor)
	if err != nil {
		return nil, nil, err
	}
	maxCashAmountOut, err := fixedpoint.MulDivDown(creditAmountIn, fixedpoint.Percent, denominator)
	if err != nil {
		return nil, nil, err
	}
	fees, err := e.swapFee(maxCashAmountOut, tenor)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case creditAmountIn.Eq(maxCredit):
	case creditAmountIn.Lt(maxCredit):
		fees = new(uint256.Int).Add(fees, e.cfg.Fees.FragmentationFee)
	default:
		return nil, nil, fmt.Errorf("%w: %s > %s", ErrNotEnoughCredit, creditAmountIn.Dec(), maxCredit.Dec())
	}
	if fees.Gt(maxCashAmountOut) {
		return nil, nil, fmt.Errorf("%w: cash %s, fees %s", ErrNotEnoughCash, maxCashAmountOut.Dec(), fees.Dec())
	}
	return new(uint256.Int).Sub(maxCashAmountOut, fees), fees, nil
}

// getCreditAmountIn is the inverse of getCashAmountOut: the credit a seller
// must give up to receive exactly cashAmountOut.
func (e *Engine) getCreditAmountIn(cashAmountOut, maxCashAmountOut, maxCredit, ratePerTenor *uint256.Int, tenor uint64) (*uint256.Int, *uint256.Int, error) {
	pct, err := e.swapFeePercent(tenor)
	if err != nil {
		return nil, nil, err
	}
	fragmentationFee := e.cfg.Fees.FragmentationFee
	maxCashAmountOutFragmentation := new(uint256.Int)
	if !maxCashAmountOut.Lt(fragmentationFee) {
		maxCashAmountOutFragmentation.Sub(maxCashAmountOut, fragmentationFee)
	}

	switch {
	case cashAmountOut.Eq(maxCashAmountOut):
		fees, err := fixedpoint.MulDivUp(cashAmountOut, pct, fixedpoint.Percent)
		if err != nil {
			return nil, nil, err
		}
		return new(uint256.Int).Set(maxCredit), fees, nil
	case cashAmountOut.Lt(maxCashAmountOutFragmentation):
		if !pct.Lt(fixedpoint.Percent) {
			return nil, nil, fmt.Errorf("%w: swap fee consumes the cash leg", ErrNotEnoughCash)
		}
		numerator, err := onePlus(ratePerTenor)
		if err != nil {
			return nil, nil, err
		}
		gross, err := fixedpoint.CheckedAdd(cashAmountOut, fragmentationFee)
		if err != nil {
			return nil, nil, err
		}
		creditAmountIn, err := fixedpoint.MulDivUp(gross, numerator, new(uint256.Int).Sub(fixedpoint.Percent, pct))
		if err != nil {
			return nil, nil, err
		}
		fees, err := fixedpoint.MulDivUp(cashAmountOut, pct, fixedpoint.Percent)
		if err != nil {
			return nil, nil, err
		}
		return creditAmountIn, fees.Add(fees, fragmentationFee), nil
	default:
		return nil, nil, fmt.Errorf("%w: requested %s, available %s", ErrNotEnoughCash, cashAmountOut.Dec(), maxCashAmountOutFragmentation.Dec())
	}
}

// getCreditAmountOut prices a purchase paying cashAmountIn. The swap fee is
// carved out of the cash the seller receives.
func (e *Engine) getCreditAmountOut(cashAmountIn, maxCashAmountIn, maxCredit, ratePerTenor *uint256.Int, tenor uint64) (*uint256.Int, *uint256.Int, error) {
	switch {
	case cashAmountIn.Eq(maxCashAmountIn):
		fees, err := e.swapFee(cashAmountIn, tenor)
		if err != nil {
			return nil, nil, err
		}
		return new(uint256.Int).Set(maxCredit), fees, nil
	case cashAmountIn.Lt(maxCashAmountIn):
		fragmentationFee := e.cfg.Fees.FragmentationFee
		if fragmentationFee.Gt(cashAmountIn) {
			return nil, nil, fmt.Errorf("%w: cash %s below fragmentation fee %s", ErrNotEnoughCash, cashAmountIn.Dec(), fragmentationFee.Dec())
		}
		net := new(uint256.Int).Sub(cashAmountIn, fragmentationFee)
		numerator, err := onePlus(ratePerTenor)
		if err != nil {
			return nil, nil, err
		}
		creditAmountOut, err := fixedpoint.MulDivDown(net, numerator, fixedpoint.Percent)
		if err != nil {
			return nil, nil, err
		}
		fees, err := e.swapFee(net, tenor)
		if err != nil {
			return nil, nil, err
		}
		return creditAmountOut, fees.Add(fees, fragmentationFee), nil
	default:
		return nil, nil, fmt.Errorf("%w: cash %s > %s", ErrNotEnoughCredit, cashAmountIn.Dec(), maxCashAmountIn.Dec())
	}
}

// getCashAmountIn is the inverse of getCreditAmountOut: the cash a buyer
// pays to receive exactly creditAmountOut.
func (e *Engine) getCashAmountIn(creditAmountOut, maxCredit, ratePerTenor *uint256.Int, tenor uint64) (*uint256.Int, *uint256.Int, error) {
	denominator, err := onePlus(ratePerTenor)
	if err != nil {
		return nil, nil, err
	}
	var cashAmountIn, fees *uint256.Int
	switch {
	case creditAmountOut.Eq(maxCredit):
		cashAmountIn, err = fixedpoint.MulDivUp(maxCredit, fixedpoint.Percent, denominator)
		if err != nil {
			return nil, nil, err
		}
		fees, err = e.swapFee(cashAmountIn, tenor)
		if err != nil {
			return nil, nil, err
		}
	case creditAmountOut.Lt(maxCredit):
		net, err := fixedpoint.MulDivUp(creditAmountOut, fixedpoint.Percent, denominator)
		if err != nil {
			return nil, nil, err
		}
		cashAmountIn, err = fixedpoint.CheckedAdd(net, e.cfg.Fees.FragmentationFee)
		if err != nil {
			return nil, nil, err
		}
		fees, err = e.swapFee(net, tenor)
		if err != nil {
			return nil, nil, err
		}
		fees.Add(fees, e.cfg.Fees.FragmentationFee)
	default:
		return nil, nil, fmt.Errorf("%w: %s > %s", ErrNotEnoughCredit, creditAmountOut.Dec(), maxCredit.Dec())
	}
	if fees.Gt(cashAmountIn) {
		return nil, nil, fmt.Errorf("%w: cash %s, fees %s", ErrNotEnoughCash, cashAmountIn.Dec(), fees.Dec())
	}
	return cashAmountIn, fees, nil
}
