package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SelfLiquidateParams lets a lender take their claim's share of an
// underwater borrower's collateral instead of waiting for a liquidator.
type SelfLiquidateParams struct {
	CreditPositionID uint64
}

// SelfLiquidateResult reports the credit written off and collateral received.
type SelfLiquidateResult struct {
	CreditPositionID uint64
	DebtPositionID   uint64
	Credit           *uint256.Int
	Collateral       *uint256.Int
}

// SelfLiquidate trades the caller's credit position for its pro-rata assigned
// collateral. No cash moves and no reward is paid.
func (e *Engine) SelfLiquidate(caller common.Address, params SelfLiquidateParams) (*SelfLiquidateResult, error) {
	return execute[*SelfLiquidateResult](e, "selfLiquidate", caller, params)
}

func (p SelfLiquidateParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	cp, dp, err := e.getDebtPositionByCreditPositionID(p.CreditPositionID)
	if err != nil {
		return nil, err
	}
	ok, err := e.isCreditPositionSelfLiquidatable(ctx.now, p.CreditPositionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotSelfLiquidatable, p.CreditPositionID)
	}
	if cp.Lender != ctx.caller {
		return nil, fmt.Errorf("%w: caller does not hold credit position %d", ErrUnauthorized, p.CreditPositionID)
	}
	if cp.Claimed() {
		return nil, fmt.Errorf("%w: %d", ErrCreditPositionClaimed, p.CreditPositionID)
	}

	collateral, err := e.creditPositionProRataAssignedCollateral(cp)
	if err != nil {
		return nil, err
	}
	credit := cloneAmount(cp.Credit)
	if err := e.reduceDebtAndCredit(cp.DebtPositionID, p.CreditPositionID, credit); err != nil {
		return nil, err
	}
	if err := e.transferCollateral(dp.Borrower, ctx.caller, collateral); err != nil {
		return nil, err
	}
	e.emit(newEvent(TypeSelfLiquidate, map[string]string{
		"lender":           addrAttr(ctx.caller),
		"borrower":         addrAttr(dp.Borrower),
		"creditPositionId": idAttr(p.CreditPositionID),
		"debtPositionId":   idAttr(cp.DebtPositionID),
		"credit":           amountAttr(credit),
		"collateral":       amountAttr(collateral),
	}))
	return &SelfLiquidateResult{
		CreditPositionID: p.CreditPositionID,
		DebtPositionID:   cp.DebtPositionID,
		Credit:           credit,
		Collateral:       collateral,
	}, nil
}
