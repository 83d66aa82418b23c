package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// LiquidateParams repays a liquidatable debt position in exchange for the
// borrower's collateral assigned to it.
type LiquidateParams struct {
	DebtPositionID          uint64
	MinimumCollateralProfit *uint256.Int
	Deadline                uint64
}

// LiquidateResult reports the collateral split.
type LiquidateResult struct {
	DebtPositionID        uint64
	Repaid                *uint256.Int
	LiquidatorProfit      *uint256.Int
	ProtocolProfit        *uint256.Int
	Overdue               bool
	Underwater            bool
	CollateralRatioBefore *uint256.Int
}

// Liquidate closes an overdue or underwater debt position. The liquidator
// pays the full face value in cash and receives up to the face value in
// collateral plus a capped reward; part of any surplus goes to the fee
// recipient and the rest stays with the borrower.
func (e *Engine) Liquidate(caller common.Address, params LiquidateParams) (*LiquidateResult, error) {
	return execute[*LiquidateResult](e, "liquidate", caller, params)
}

func (e *Engine) validateLiquidate(ctx execContext, p LiquidateParams) (*DebtPosition, error) {
	dp, err := e.getDebtPosition(p.DebtPositionID)
	if err != nil {
		return nil, err
	}
	ok, err := e.isDebtPositionLiquidatable(ctx.now, p.DebtPositionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotLiquidatable, p.DebtPositionID)
	}
	if err := e.checkDeadline(ctx, p.Deadline); err != nil {
		return nil, err
	}
	return dp, nil
}

func (p LiquidateParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	dp, err := e.validateLiquidate(ctx, p)
	if err != nil {
		return nil, err
	}
	return e.executeLiquidate(ctx, p, dp, TypeLiquidate)
}

// liquidationProtocolPercent picks the protocol's cut of the capped
// remainder. Overdue takes precedence over underwater.
func (e *Engine) liquidationProtocolPercent(overdue bool) *uint256.Int {
	if overdue {
		return e.cfg.Fees.OverdueCollateralProtocolPercent
	}
	return e.cfg.Fees.CollateralProtocolPercent
}

// executeLiquidate settles dp on behalf of the caller and splits the
// borrower's assigned collateral. The liquidator's share never exceeds the
// assigned collateral.
func (e *Engine) executeLiquidate(ctx execContext, p LiquidateParams, dp *DebtPosition, kind string) (*LiquidateResult, error) {
	ratio, err := e.CollateralRatio(dp.Borrower)
	if err != nil {
		return nil, err
	}
	underwater := ratio.Lt(fixedpoint.Percent)
	overdue := dp.Status(ctx.now) == LoanOverdue

	assigned, err := e.debtPositionAssignedCollateral(dp)
	if err != nil {
		return nil, err
	}
	debtInCollateral, err := e.debtTokenAmountToCollateralTokenAmount(dp.FutureValue)
	if err != nil {
		return nil, err
	}

	liquidatorProfit := new(uint256.Int).Set(assigned)
	protocolProfit := new(uint256.Int)
	if assigned.Gt(debtInCollateral) {
		surplus := new(uint256.Int).Sub(assigned, debtInCollateral)
		reward, err := fixedpoint.MulDivUp(debtInCollateral, e.cfg.Fees.LiquidationRewardPercent, fixedpoint.Percent)
		if err != nil {
			return nil, err
		}
		reward = fixedpoint.Min(surplus, reward)
		liquidatorProfit = new(uint256.Int).Add(debtInCollateral, reward)

		// The protocol share is taken from at most CRLiquidation worth of
		// debt, whatever made the loan liquidatable.
		remainder := new(uint256.Int).Sub(assigned, liquidatorProfit)
		remainderCap, err := fixedpoint.MulDivDown(debtInCollateral, e.cfg.Risk.CRLiquidation, fixedpoint.Percent)
		if err != nil {
			return nil, err
		}
		remainder = fixedpoint.Min(remainder, remainderCap)
		protocolPercent := e.liquidationProtocolPercent(overdue)
		protocolProfit, err = fixedpoint.MulDivDown(remainder, protocolPercent, fixedpoint.Percent)
		if err != nil {
			return nil, err
		}
	}

	faceValue := cloneAmount(dp.FutureValue)
	if err := e.transferCash(ctx.caller, e.moduleAddress, faceValue); err != nil {
		return nil, err
	}
	if err := e.repayDebt(p.DebtPositionID, faceValue); err != nil {
		return nil, err
	}
	if err := e.transferCollateral(dp.Borrower, ctx.caller, liquidatorProfit); err != nil {
		return nil, err
	}
	if err := e.transferCollateral(dp.Borrower, e.cfg.Fees.FeeRecipient, protocolProfit); err != nil {
		return nil, err
	}
	if p.MinimumCollateralProfit != nil && liquidatorProfit.Lt(p.MinimumCollateralProfit) {
		return nil, fmt.Errorf("%w: %s < %s", ErrCollateralProfitTooLow, liquidatorProfit.Dec(), p.MinimumCollateralProfit.Dec())
	}

	e.emit(newEvent(kind, map[string]string{
		"liquidator":            addrAttr(ctx.caller),
		"borrower":              addrAttr(dp.Borrower),
		"debtPositionId":        idAttr(p.DebtPositionID),
		"repaid":                amountAttr(faceValue),
		"liquidatorProfit":      amountAttr(liquidatorProfit),
		"protocolProfit":        amountAttr(protocolProfit),
		"overdue":               boolAttr(overdue),
		"underwater":            boolAttr(underwater),
		"collateralRatioBefore": amountAttr(ratio),
	}))
	return &LiquidateResult{
		DebtPositionID:        p.DebtPositionID,
		Repaid:                faceValue,
		LiquidatorProfit:      liquidatorProfit,
		ProtocolProfit:        protocolProfit,
		Overdue:               overdue,
		Underwater:            underwater,
		CollateralRatioBefore: ratio,
	}, nil
}
