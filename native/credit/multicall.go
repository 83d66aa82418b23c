package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Operation is an order that can run on its own or inside Multicall. Each
// params struct of the order API implements it.
type Operation interface {
	exec(e *Engine, ctx execContext) (interface{}, error)
}

// execute runs a single operation atomically and returns its typed result.
func execute[R any](e *Engine, name string, caller common.Address, op Operation) (R, error) {
	var out R
	err := e.run(name, caller, func(ctx execContext) error {
		res, err := op.exec(e, ctx)
		if err != nil {
			return err
		}
		if typed, ok := res.(R); ok {
			out = typed
		}
		return nil
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// Multicall applies ops in order as one unit: any failure reverts them all.
// The cash supply cap is checked once at the end instead of after every
// deposit, so a batch may repay debt with freshly deposited cash even while
// the market sits above the cap.
func (e *Engine) Multicall(caller common.Address, ops []Operation) ([]interface{}, error) {
	results := make([]interface{}, 0, len(ops))
	err := e.run("multicall", caller, func(ctx execContext) error {
		ctx.batch = true
		cashBefore, err := e.tokens.Cash.TotalSupply()
		if err != nil {
			return err
		}
		debtBefore, err := e.tokens.Debt.TotalSupply()
		if err != nil {
			return err
		}
		for i, op := range ops {
			if op == nil {
				return fmt.Errorf("credit: batch call %d: %w", i, ErrNilOperation)
			}
			res, err := op.exec(e, ctx)
			if err != nil {
				return fmt.Errorf("credit: batch call %d: %w", i, err)
			}
			results = append(results, res)
		}
		cashAfter, err := e.tokens.Cash.TotalSupply()
		if err != nil {
			return err
		}
		debtAfter, err := e.tokens.Debt.TotalSupply()
		if err != nil {
			return err
		}
		return e.validateCashIncreaseWithinDebtDecrease(cashBefore, debtBefore, cashAfter, debtAfter)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) validateBorrowATokenCap() error {
	supply, err := e.tokens.Cash.TotalSupply()
	if err != nil {
		return err
	}
	if supply.Gt(e.cfg.Risk.BorrowATokenCap) {
		return fmt.Errorf("%w: supply %s above cap %s", ErrBorrowATokenCapExceeded, supply.Dec(), e.cfg.Risk.BorrowATokenCap.Dec())
	}
	return nil
}

// validateCashIncreaseWithinDebtDecrease lets a batch end above the cap only
// when every unit of new cash was matched by retired debt.
func (e *Engine) validateCashIncreaseWithinDebtDecrease(cashBefore, debtBefore, cashAfter, debtAfter *uint256.Int) error {
	if !cashAfter.Gt(e.cfg.Risk.BorrowATokenCap) {
		return nil
	}
	increase := new(uint256.Int)
	if cashAfter.Gt(cashBefore) {
		increase.Sub(cashAfter, cashBefore)
	}
	decrease := new(uint256.Int)
	if debtBefore.Gt(debtAfter) {
		decrease.Sub(debtBefore, debtAfter)
	}
	if increase.Gt(decrease) {
		return fmt.Errorf("%w: increase %s, decrease %s", ErrCapIncreaseExceedsDebt, increase.Dec(), decrease.Dec())
	}
	return nil
}
