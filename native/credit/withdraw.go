package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// WithdrawParams redeems receipts for underlying. Amount is capped at the
// caller's balance, so MaxUint256 withdraws everything.
type WithdrawParams struct {
	Token  string
	Amount *uint256.Int
	To     common.Address
}

// WithdrawResult reports the amount actually withdrawn.
type WithdrawResult struct {
	Token  string
	Amount *uint256.Int
	To     common.Address
}

// Withdraw burns the caller's receipts and releases underlying to To. The
// caller must stay above their opening collateral ratio afterwards.
func (e *Engine) Withdraw(caller common.Address, params WithdrawParams) (*WithdrawResult, error) {
	return execute[*WithdrawResult](e, "withdraw", caller, params)
}

func (p WithdrawParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	isCollateral, err := e.underlyingKind(p.Token)
	if err != nil {
		return nil, err
	}
	if err := requirePositive(p.Amount); err != nil {
		return nil, err
	}
	if p.To == (common.Address{}) {
		return nil, ErrNullAddress
	}

	receipt := e.tokens.Cash
	symbol := e.tokens.UnderlyingBorrow.Symbol()
	if isCollateral {
		receipt = e.tokens.Collateral
		symbol = e.tokens.UnderlyingCollateral.Symbol()
	}
	balance, err := receipt.BalanceOf(ctx.caller)
	if err != nil {
		return nil, err
	}
	amount := fixedpoint.Min(p.Amount, balance)
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: no %s balance", ErrNullAmount, symbol)
	}

	if isCollateral {
		if err := e.tokens.Collateral.Burn(ctx.caller, amount); err != nil {
			return nil, err
		}
		if err := e.tokens.UnderlyingCollateral.TransferFrom(e.moduleAddress, p.To, amount); err != nil {
			return nil, err
		}
	} else {
		if err := e.validateVariablePoolHasEnoughLiquidity(amount); err != nil {
			return nil, err
		}
		if err := e.tokens.Cash.Burn(ctx.caller, amount); err != nil {
			return nil, err
		}
		if err := e.pool.Withdraw(p.To, amount); err != nil {
			return nil, err
		}
	}
	if err := e.validateUserIsNotBelowOpeningLimitBorrowCR(ctx.caller); err != nil {
		return nil, err
	}
	e.emit(newEvent(TypeWithdraw, map[string]string{
		"caller": addrAttr(ctx.caller),
		"token":  symbol,
		"amount": amountAttr(amount),
		"to":     addrAttr(p.To),
	}))
	return &WithdrawResult{Token: symbol, Amount: amount, To: p.To}, nil
}
