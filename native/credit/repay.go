package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RepayParams settles a debt position in full.
type RepayParams struct {
	DebtPositionID uint64
}

// RepayResult reports the settled face value and the recorded index.
type RepayResult struct {
	DebtPositionID uint64
	Amount         *uint256.Int
	LiquidityIndex *uint256.Int
}

// Repay pays the position's full face value in cash into the module. Only the
// borrower may repay.
func (e *Engine) Repay(caller common.Address, params RepayParams) (*RepayResult, error) {
	return execute[*RepayResult](e, "repay", caller, params)
}

func (p RepayParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	dp, err := e.getDebtPosition(p.DebtPositionID)
	if err != nil {
		return nil, err
	}
	if dp.Repaid() {
		return nil, fmt.Errorf("%w: %d", ErrLoanAlreadyRepaid, p.DebtPositionID)
	}
	if ctx.caller != dp.Borrower {
		return nil, fmt.Errorf("%w: position %d belongs to %s", ErrUnauthorized, p.DebtPositionID, dp.Borrower.Hex())
	}
	amount := cloneAmount(dp.FutureValue)
	if err := e.transferCash(ctx.caller, e.moduleAddress, amount); err != nil {
		return nil, err
	}
	if err := e.repayDebt(p.DebtPositionID, amount); err != nil {
		return nil, err
	}
	settled, err := e.getDebtPosition(p.DebtPositionID)
	if err != nil {
		return nil, err
	}
	e.emit(newEvent(TypeRepay, map[string]string{
		"borrower":       addrAttr(dp.Borrower),
		"debtPositionId": idAttr(p.DebtPositionID),
		"amount":         amountAttr(amount),
		"liquidityIndex": amountAttr(settled.LiquidityIndexAtRepayment),
	}))
	return &RepayResult{
		DebtPositionID: p.DebtPositionID,
		Amount:         amount,
		LiquidityIndex: settled.LiquidityIndexAtRepayment,
	}, nil
}
