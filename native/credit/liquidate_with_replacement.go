package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// LiquidateWithReplacementParams liquidates an active, underwater debt
// position and hands the obligation to Borrower at their standing borrow
// offer for the remaining tenor.
type LiquidateWithReplacementParams struct {
	DebtPositionID          uint64
	Borrower                common.Address
	MinimumCollateralProfit *uint256.Int
	Deadline                uint64
	MinAPR                  *uint256.Int
}

// LiquidateWithReplacementResult reports both the liquidation and the
// replacement legs.
type LiquidateWithReplacementResult struct {
	Liquidation   *LiquidateResult
	NewBorrower   common.Address
	IssuanceValue *uint256.Int
	ProtocolCash  *uint256.Int
	Tenor         uint64
	APR           *uint256.Int
}

// LiquidateWithReplacement is restricted to keepers. The keeper fronts the
// face value and collects the liquidation collateral; the replacement
// borrower receives the discounted issuance value and the spread goes to the
// fee recipient.
func (e *Engine) LiquidateWithReplacement(caller common.Address, params LiquidateWithReplacementParams) (*LiquidateWithReplacementResult, error) {
	return execute[*LiquidateWithReplacementResult](e, "liquidateWithReplacement", caller, params)
}

func (p LiquidateWithReplacementParams) liquidation() LiquidateParams {
	return LiquidateParams{
		DebtPositionID:          p.DebtPositionID,
		MinimumCollateralProfit: p.MinimumCollateralProfit,
		Deadline:                p.Deadline,
	}
}

func (p LiquidateWithReplacementParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	if err := e.requireKeeper(ctx.caller); err != nil {
		return nil, err
	}
	dp, err := e.validateLiquidate(ctx, p.liquidation())
	if err != nil {
		return nil, err
	}
	if dp.Status(ctx.now) != LoanActive {
		return nil, fmt.Errorf("%w: %d is %s", ErrLoanNotActive, p.DebtPositionID, dp.Status(ctx.now))
	}
	if p.Borrower == (common.Address{}) {
		return nil, ErrNullAddress
	}
	if p.Borrower == dp.Borrower {
		return nil, fmt.Errorf("%w: replacement is the current borrower", ErrInvalidBorrower)
	}
	user, err := e.getUser(p.Borrower)
	if err != nil {
		return nil, err
	}
	if user.BorrowOffer.IsNull() {
		return nil, fmt.Errorf("%w: %s has no borrow offer", ErrInvalidOffer, p.Borrower.Hex())
	}
	tenor := dp.DueDate - ctx.now
	if err := e.validateTenor(tenor); err != nil {
		return nil, err
	}
	apr, ratePerTenor, err := e.quote(user.BorrowOffer.Curve, tenor, ctx.now)
	if err != nil {
		return nil, err
	}
	if p.MinAPR != nil && apr.Lt(p.MinAPR) {
		return nil, fmt.Errorf("%w: %s < %s", ErrAPRBelowMin, apr.Dec(), p.MinAPR.Dec())
	}

	liquidation, err := e.executeLiquidate(ctx, p.liquidation(), dp, TypeLiquidate)
	if err != nil {
		return nil, err
	}

	faceValue := liquidation.Repaid
	denominator, err := onePlus(ratePerTenor)
	if err != nil {
		return nil, err
	}
	issuance, err := fixedpoint.MulDivDown(faceValue, fixedpoint.Percent, denominator)
	if err != nil {
		return nil, err
	}
	spread := new(uint256.Int).Sub(faceValue, issuance)

	replaced, err := e.getDebtPosition(p.DebtPositionID)
	if err != nil {
		return nil, err
	}
	replaced.Borrower = p.Borrower
	replaced.FutureValue = cloneAmount(faceValue)
	replaced.LiquidityIndexAtRepayment = new(uint256.Int)
	if err := e.putDebtPosition(p.DebtPositionID, replaced); err != nil {
		return nil, err
	}
	e.emitDebtPosition(TypeUpdateDebtPosition, p.DebtPositionID, replaced)
	if err := e.tokens.Debt.Mint(p.Borrower, faceValue); err != nil {
		return nil, err
	}
	if err := e.transferCash(e.moduleAddress, p.Borrower, issuance); err != nil {
		return nil, err
	}
	if err := e.transferCash(e.moduleAddress, e.cfg.Fees.FeeRecipient, spread); err != nil {
		return nil, err
	}
	if err := e.validateUserIsNotBelowOpeningLimitBorrowCR(p.Borrower); err != nil {
		return nil, err
	}

	e.emit(newEvent(TypeLiquidateWithReplacement, map[string]string{
		"keeper":         addrAttr(ctx.caller),
		"debtPositionId": idAttr(p.DebtPositionID),
		"borrower":       addrAttr(p.Borrower),
		"issuanceValue":  amountAttr(issuance),
		"protocolCash":   amountAttr(spread),
		"tenor":          idAttr(tenor),
		"apr":            amountAttr(apr),
	}))
	return &LiquidateWithReplacementResult{
		Liquidation:   liquidation,
		NewBorrower:   p.Borrower,
		IssuanceValue: issuance,
		ProtocolCash:  spread,
		Tenor:         tenor,
		APR:           apr,
	}, nil
}
