package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (e *Engine) transferCash(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := e.tokens.Cash.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientCash, from.Hex(), balance.Dec(), amount.Dec())
	}
	return e.tokens.Cash.TransferFrom(from, to, amount)
}

func (e *Engine) transferCollateral(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := e.tokens.Collateral.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientCollateral, from.Hex(), balance.Dec(), amount.Dec())
	}
	return e.tokens.Collateral.TransferFrom(from, to, amount)
}

func (e *Engine) validateVariablePoolHasEnoughLiquidity(amount *uint256.Int) error {
	liquidity, err := e.pool.ReserveLiquidity()
	if err != nil {
		return err
	}
	if liquidity.Lt(amount) {
		return fmt.Errorf("%w: %s available, %s required", ErrNotEnoughLiquidity, liquidity.Dec(), amount.Dec())
	}
	return nil
}

func requirePositive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNullAmount
	}
	return nil
}

func (e *Engine) checkDeadline(ctx execContext, deadline uint64) error {
	if ctx.now > deadline {
		return fmt.Errorf("%w: %d after %d", ErrDeadlinePassed, ctx.now, deadline)
	}
	return nil
}
