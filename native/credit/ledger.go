package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// createDebtAndCreditPositions originates a loan: one debt position owed by
// borrower and one credit position for its full face value held by lender.
func (e *Engine) createDebtAndCreditPositions(ctx execContext, lender, borrower common.Address, futureValue *uint256.Int, dueDate uint64) (uint64, uint64, error) {
	if dueDate <= ctx.now {
		return 0, 0, fmt.Errorf("%w: %d not after %d", ErrInvalidDueDate, dueDate, ctx.now)
	}
	if err := e.validateTenor(dueDate - ctx.now); err != nil {
		return 0, 0, err
	}
	if err := e.validateMinimumCreditOpening(futureValue); err != nil {
		return 0, 0, err
	}

	debtID, err := e.nextID(nextDebtIDKey, DebtPositionIDStart)
	if err != nil {
		return 0, 0, err
	}
	dp := &DebtPosition{
		Borrower:                  borrower,
		FutureValue:               cloneAmount(futureValue),
		DueDate:                   dueDate,
		LiquidityIndexAtRepayment: new(uint256.Int),
	}
	if err := e.putDebtPosition(debtID, dp); err != nil {
		return 0, 0, err
	}

	creditID, err := e.nextID(nextCreditIDKey, CreditPositionIDStart)
	if err != nil {
		return 0, 0, err
	}
	cp := &CreditPosition{
		Lender:         lender,
		Credit:         cloneAmount(futureValue),
		DebtPositionID: debtID,
		ForSale:        true,
	}
	if err := e.putCreditPosition(creditID, cp); err != nil {
		return 0, 0, err
	}
	if err := e.tokens.Debt.Mint(borrower, futureValue); err != nil {
		return 0, 0, err
	}
	e.emitDebtPosition(TypeCreateDebtPosition, debtID, dp)
	e.emitCreditPosition(TypeCreateCreditPosition, creditID, cp)
	return debtID, creditID, nil
}

// createCreditPosition moves credit out of exitID to lender. Taking the whole
// claim reassigns the position in place; a partial take splits off a sibling.
func (e *Engine) createCreditPosition(exitID uint64, lender common.Address, credit *uint256.Int, forSale bool) (uint64, error) {
	exit, err := e.getCreditPosition(exitID)
	if err != nil {
		return 0, err
	}
	if exit.Credit.Eq(credit) {
		exit.Lender = lender
		exit.ForSale = forSale
		if err := e.putCreditPosition(exitID, exit); err != nil {
			return 0, err
		}
		e.emitCreditPosition(TypeUpdateCreditPosition, exitID, exit)
		return exitID, nil
	}
	if credit.Gt(exit.Credit) {
		return 0, fmt.Errorf("%w: %s > %s", ErrNotEnoughCredit, credit.Dec(), exit.Credit.Dec())
	}
	if err := e.validateMinimumCredit(credit); err != nil {
		return 0, err
	}
	if err := e.reduceCredit(exitID, credit); err != nil {
		return 0, err
	}
	id, err := e.nextID(nextCreditIDKey, CreditPositionIDStart)
	if err != nil {
		return 0, err
	}
	cp := &CreditPosition{
		Lender:         lender,
		Credit:         cloneAmount(credit),
		DebtPositionID: exit.DebtPositionID,
		ForSale:        forSale,
	}
	if err := e.putCreditPosition(id, cp); err != nil {
		return 0, err
	}
	e.emitCreditPosition(TypeCreateCreditPosition, id, cp)
	return id, nil
}

func (e *Engine) reduceCredit(id uint64, amount *uint256.Int) error {
	cp, err := e.getCreditPosition(id)
	if err != nil {
		return err
	}
	if amount.Gt(cp.Credit) {
		return fmt.Errorf("%w: %s > %s", ErrNotEnoughCredit, amount.Dec(), cp.Credit.Dec())
	}
	cp.Credit = new(uint256.Int).Sub(cp.Credit, amount)
	if err := e.validateMinimumCredit(cp.Credit); err != nil {
		return err
	}
	if err := e.putCreditPosition(id, cp); err != nil {
		return err
	}
	e.emitCreditPosition(TypeUpdateCreditPosition, id, cp)
	return nil
}

// reduceDebtAndCredit extinguishes amount of a debt together with the same
// amount of one of its claims. A debt reduced to zero is marked repaid.
func (e *Engine) reduceDebtAndCredit(debtID, creditID uint64, amount *uint256.Int) error {
	dp, err := e.getDebtPosition(debtID)
	if err != nil {
		return err
	}
	if amount.Gt(dp.FutureValue) {
		return fmt.Errorf("%w: %s > %s", ErrNotEnoughCredit, amount.Dec(), dp.FutureValue.Dec())
	}
	dp.FutureValue = new(uint256.Int).Sub(dp.FutureValue, amount)
	if err := e.tokens.Debt.Burn(dp.Borrower, amount); err != nil {
		return err
	}
	if dp.FutureValue.IsZero() {
		index, err := e.pool.LiquidityIndex()
		if err != nil {
			return err
		}
		dp.LiquidityIndexAtRepayment = index
	}
	if err := e.putDebtPosition(debtID, dp); err != nil {
		return err
	}
	e.emitDebtPosition(TypeUpdateDebtPosition, debtID, dp)
	return e.reduceCredit(creditID, amount)
}

// repayDebt settles a debt in full. The face value is kept so outstanding
// claims can still be redeemed against it; the debt token is burned.
func (e *Engine) repayDebt(debtID uint64, amount *uint256.Int) error {
	dp, err := e.getDebtPosition(debtID)
	if err != nil {
		return err
	}
	if !amount.Eq(dp.FutureValue) {
		return fmt.Errorf("%w: %s != %s", ErrPartialRepayment, amount.Dec(), dp.FutureValue.Dec())
	}
	if err := e.tokens.Debt.Burn(dp.Borrower, amount); err != nil {
		return err
	}
	index, err := e.pool.LiquidityIndex()
	if err != nil {
		return err
	}
	dp.LiquidityIndexAtRepayment = index
	if err := e.putDebtPosition(debtID, dp); err != nil {
		return err
	}
	e.emitDebtPosition(TypeUpdateDebtPosition, debtID, dp)
	return nil
}
