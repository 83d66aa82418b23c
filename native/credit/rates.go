package credit

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
)

func (e *Engine) variableRateParams(now uint64) (curve.VariableRateParams, error) {
	rate, err := e.getVariableRate()
	if err != nil {
		return curve.VariableRateParams{}, err
	}
	return curve.VariableRateParams{
		Rate:              rate.Rate,
		UpdatedAt:         rate.UpdatedAt,
		StaleRateInterval: e.cfg.Oracle.VariablePoolBorrowRateStaleRateInterval,
		Now:               now,
	}, nil
}

func wrapCurveErr(err error) error {
	switch {
	case errors.Is(err, curve.ErrStaleRate):
		return fmt.Errorf("%w: %w", ErrStaleRate, err)
	case errors.Is(err, curve.ErrTenorOutOfRange):
		return fmt.Errorf("%w: %w", ErrInvalidTenor, err)
	default:
		return fmt.Errorf("credit: rate: %w", err)
	}
}

// quote evaluates c at tenor and returns the APR and the rate over tenor,
// both rounded down.
func (e *Engine) quote(c curve.YieldCurve, tenor, now uint64) (*uint256.Int, *uint256.Int, error) {
	if c.IsNull() {
		return nil, nil, ErrNullOffer
	}
	params, err := e.variableRateParams(now)
	if err != nil {
		return nil, nil, err
	}
	apr, err := curve.APR(c, tenor, params)
	if err != nil {
		return nil, nil, wrapCurveErr(err)
	}
	ratePerTenor, err := curve.RatePerTenor(apr, tenor, false)
	if err != nil {
		return nil, nil, wrapCurveErr(err)
	}
	return apr, ratePerTenor, nil
}

// LoanOfferAPR quotes lender's standing loan offer at tenor.
func (e *Engine) LoanOfferAPR(lender common.Address, tenor uint64) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.getUser(lender)
	if err != nil {
		return nil, err
	}
	apr, _, err := e.quote(user.LoanOffer.Curve, tenor, e.now())
	return apr, err
}

// BorrowOfferAPR quotes borrower's standing borrow offer at tenor.
func (e *Engine) BorrowOfferAPR(borrower common.Address, tenor uint64) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.getUser(borrower)
	if err != nil {
		return nil, err
	}
	apr, _, err := e.quote(user.BorrowOffer.Curve, tenor, e.now())
	return apr, err
}

// VariableRate returns the stored reference rate.
func (e *Engine) VariableRate() (*VariableRate, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.getVariableRate()
}

// SetVariableRate records a new reference borrow rate observed at
// updatedAt. Updates may not travel backwards or into the future.
func (e *Engine) SetVariableRate(caller common.Address, rate *uint256.Int, updatedAt uint64) error {
	return e.run("setVariableRate", caller, func(ctx execContext) error {
		return e.setVariableRate(ctx, rate, updatedAt)
	})
}

func (e *Engine) setVariableRate(ctx execContext, rate *uint256.Int, updatedAt uint64) error {
	if err := e.requireKeeper(ctx.caller); err != nil {
		return err
	}
	if rate == nil {
		return fmt.Errorf("%w: rate required", ErrInvalidVariable)
	}
	if updatedAt > ctx.now {
		return fmt.Errorf("%w: timestamp %d after %d", ErrInvalidVariable, updatedAt, ctx.now)
	}
	current, err := e.getVariableRate()
	if err != nil {
		return err
	}
	if updatedAt < current.UpdatedAt {
		return fmt.Errorf("%w: timestamp %d before %d", ErrInvalidVariable, updatedAt, current.UpdatedAt)
	}
	next := &VariableRate{Rate: new(uint256.Int).Set(rate), UpdatedAt: updatedAt}
	if err := e.state.KVPut(variableRateKey, next); err != nil {
		return err
	}
	e.emit(newEvent(TypeVariableRateUpdated, map[string]string{
		"rate":      amountAttr(next.Rate),
		"updatedAt": idAttr(next.UpdatedAt),
	}))
	return nil
}

// SyncVariableRateFromPool refreshes the reference rate from the pool's
// utilisation curve when the pool quotes one.
func (e *Engine) SyncVariableRateFromPool(caller common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.run("syncVariableRate", caller, func(ctx execContext) error {
		source, ok := e.pool.(RateSource)
		if !ok {
			return fmt.Errorf("%w: pool does not quote a borrow rate", ErrNilCollaborator)
		}
		rate, err := source.BorrowRate()
		if err != nil {
			return err
		}
		out = rate
		return e.setVariableRate(ctx, rate, ctx.now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
