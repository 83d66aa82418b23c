package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// claimDustTolerance bounds, in cash base units, how far the module balance
// may fall short of a claim before the claim fails.
const claimDustTolerance = 10

// ClaimParams redeems a credit position of a repaid loan.
type ClaimParams struct {
	CreditPositionID uint64
}

// ClaimResult reports the cash paid to the lender.
type ClaimResult struct {
	CreditPositionID uint64
	Lender           common.Address
	Credit           *uint256.Int
	Amount           *uint256.Int
}

// Claim pays the lender their credit grown by the pool yield accrued since
// repayment. Anyone may trigger it; proceeds always go to the lender.
func (e *Engine) Claim(caller common.Address, params ClaimParams) (*ClaimResult, error) {
	return execute[*ClaimResult](e, "claim", caller, params)
}

func (p ClaimParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	cp, dp, err := e.getDebtPositionByCreditPositionID(p.CreditPositionID)
	if err != nil {
		return nil, err
	}
	if dp.Status(ctx.now) != LoanRepaid {
		return nil, fmt.Errorf("%w: debt position %d", ErrLoanNotRepaid, cp.DebtPositionID)
	}
	if cp.Claimed() {
		return nil, fmt.Errorf("%w: %d", ErrCreditPositionClaimed, p.CreditPositionID)
	}

	index, err := e.pool.LiquidityIndex()
	if err != nil {
		return nil, err
	}
	amount, err := fixedpoint.MulDivDown(cp.Credit, index, dp.LiquidityIndexAtRepayment)
	if err != nil {
		return nil, err
	}
	// The module's scaled balance rounds down on every mint, so the last
	// claimant may find it short by dust. Any larger gap is an accounting
	// fault and must not be paid out silently.
	held, err := e.tokens.Cash.BalanceOf(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	if held.Lt(amount) {
		shortfall := new(uint256.Int).Sub(amount, held)
		if shortfall.GtUint64(claimDustTolerance) {
			return nil, fmt.Errorf("%w: claim of %s against module balance %s", ErrInsufficientCash, amount.Dec(), held.Dec())
		}
		amount = held
	}

	credit := cloneAmount(cp.Credit)
	if err := e.reduceCredit(p.CreditPositionID, credit); err != nil {
		return nil, err
	}
	if err := e.transferCash(e.moduleAddress, cp.Lender, amount); err != nil {
		return nil, err
	}
	e.emit(newEvent(TypeClaim, map[string]string{
		"caller":           addrAttr(ctx.caller),
		"lender":           addrAttr(cp.Lender),
		"creditPositionId": idAttr(p.CreditPositionID),
		"credit":           amountAttr(credit),
		"amount":           amountAttr(amount),
	}))
	return &ClaimResult{
		CreditPositionID: p.CreditPositionID,
		Lender:           cp.Lender,
		Credit:           credit,
		Amount:           amount,
	}, nil
}
