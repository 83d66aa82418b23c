package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// priceWad returns the oracle price rescaled to 18 decimals.
func (e *Engine) priceWad() (*uint256.Int, error) {
	price, err := e.oracle.GetPrice()
	if err != nil {
		return nil, fmt.Errorf("credit: price feed: %w", err)
	}
	if price == nil || price.IsZero() {
		return nil, ErrInvalidPrice
	}
	return fixedpoint.AmountToWad(price, e.oracle.Decimals())
}

// CollateralRatio returns collateral value over debt value in 18 decimals.
// Accounts without debt report the maximum representable ratio.
func (e *Engine) CollateralRatio(account common.Address) (*uint256.Int, error) {
	debt, err := e.tokens.Debt.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	if debt.IsZero() {
		return new(uint256.Int).Set(fixedpoint.MaxUint256), nil
	}
	collateral, err := e.tokens.Collateral.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	collateralWad, err := fixedpoint.AmountToWad(collateral, e.tokens.Collateral.Decimals())
	if err != nil {
		return nil, err
	}
	debtWad, err := fixedpoint.AmountToWad(debt, e.tokens.UnderlyingBorrow.Decimals())
	if err != nil {
		return nil, err
	}
	price, err := e.priceWad()
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDivDown(collateralWad, price, debtWad)
}

// IsUserUnderwater reports whether the account's collateral ratio is below
// 100%.
func (e *Engine) IsUserUnderwater(account common.Address) (bool, error) {
	ratio, err := e.CollateralRatio(account)
	if err != nil {
		return false, err
	}
	return ratio.Lt(fixedpoint.Percent), nil
}

func (e *Engine) isDebtPositionLiquidatable(now uint64, id uint64) (bool, error) {
	dp, err := e.getDebtPosition(id)
	if err != nil {
		return false, err
	}
	if dp.Repaid() {
		return false, nil
	}
	if dp.Status(now) == LoanOverdue {
		return true, nil
	}
	return e.IsUserUnderwater(dp.Borrower)
}

func (e *Engine) isCreditPositionSelfLiquidatable(now uint64, id uint64) (bool, error) {
	_, dp, err := e.getDebtPositionByCreditPositionID(id)
	if err != nil {
		return false, err
	}
	if dp.Status(now) == LoanRepaid {
		return false, nil
	}
	return e.IsUserUnderwater(dp.Borrower)
}

// isCreditPositionTransferrable holds for live claims on active loans whose
// borrower still clears the opening limit.
func (e *Engine) isCreditPositionTransferrable(now uint64, id uint64) (bool, error) {
	cp, dp, err := e.getDebtPositionByCreditPositionID(id)
	if err != nil {
		return false, err
	}
	if dp.Status(now) != LoanActive || cp.Claimed() {
		return false, nil
	}
	below, err := e.isBelowOpeningLimitBorrowCR(dp.Borrower)
	if err != nil {
		return false, err
	}
	return !below, nil
}

func (e *Engine) openingLimitBorrowCR(account common.Address) (*uint256.Int, error) {
	user, err := e.getUser(account)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Max(e.cfg.Risk.CROpening, user.OpeningLimitBorrowCR), nil
}

func (e *Engine) isBelowOpeningLimitBorrowCR(account common.Address) (bool, error) {
	limit, err := e.openingLimitBorrowCR(account)
	if err != nil {
		return false, err
	}
	ratio, err := e.CollateralRatio(account)
	if err != nil {
		return false, err
	}
	return ratio.Lt(limit), nil
}

func (e *Engine) validateUserIsNotUnderwater(account common.Address) error {
	underwater, err := e.IsUserUnderwater(account)
	if err != nil {
		return err
	}
	if underwater {
		return fmt.Errorf("%w: %s", ErrUserUnderwater, account.Hex())
	}
	return nil
}

func (e *Engine) validateUserIsNotBelowOpeningLimitBorrowCR(account common.Address) error {
	limit, err := e.openingLimitBorrowCR(account)
	if err != nil {
		return err
	}
	ratio, err := e.CollateralRatio(account)
	if err != nil {
		return err
	}
	if ratio.Lt(limit) {
		return fmt.Errorf("%w: %s ratio %s below %s", ErrCRBelowOpeningLimit, account.Hex(), ratio.Dec(), limit.Dec())
	}
	return nil
}

// validateMinimumCredit allows zero, which marks a fully consumed position.
func (e *Engine) validateMinimumCredit(credit *uint256.Int) error {
	if !credit.IsZero() && credit.Lt(e.cfg.Risk.MinimumCreditBorrowAToken) {
		return fmt.Errorf("%w: %s < %s", ErrCreditBelowMinimum, credit.Dec(), e.cfg.Risk.MinimumCreditBorrowAToken.Dec())
	}
	return nil
}

func (e *Engine) validateMinimumCreditOpening(credit *uint256.Int) error {
	if credit.Lt(e.cfg.Risk.MinimumCreditBorrowAToken) {
		return fmt.Errorf("%w: %s < %s", ErrCreditBelowMinimumOpen, credit.Dec(), e.cfg.Risk.MinimumCreditBorrowAToken.Dec())
	}
	return nil
}

func (e *Engine) validateTenor(tenor uint64) error {
	if tenor < e.cfg.Risk.MinTenor || tenor > e.cfg.Risk.MaxTenor {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidTenor, tenor, e.cfg.Risk.MinTenor, e.cfg.Risk.MaxTenor)
	}
	return nil
}

// debtTokenAmountToCollateralTokenAmount converts a borrow-denominated amount
// into collateral units at the oracle price, rounding up.
func (e *Engine) debtTokenAmountToCollateralTokenAmount(amount *uint256.Int) (*uint256.Int, error) {
	debtWad, err := fixedpoint.AmountToWad(amount, e.tokens.UnderlyingBorrow.Decimals())
	if err != nil {
		return nil, err
	}
	price, err := e.priceWad()
	if err != nil {
		return nil, err
	}
	collateralWad, err := fixedpoint.MulDivUp(debtWad, fixedpoint.Percent, price)
	if err != nil {
		return nil, err
	}
	decimals := e.tokens.Collateral.Decimals()
	if decimals == fixedpoint.WadDecimals {
		return collateralWad, nil
	}
	return fixedpoint.MulDivUp(collateralWad, uint256.NewInt(1), fixedpoint.Pow10(fixedpoint.WadDecimals-decimals))
}

func (e *Engine) debtPositionAssignedCollateral(dp *DebtPosition) (*uint256.Int, error) {
	if dp.Repaid() {
		return new(uint256.Int), nil
	}
	debt, err := e.tokens.Debt.BalanceOf(dp.Borrower)
	if err != nil {
		return nil, err
	}
	if debt.IsZero() {
		return new(uint256.Int), nil
	}
	collateral, err := e.tokens.Collateral.BalanceOf(dp.Borrower)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDivDown(collateral, dp.FutureValue, debt)
}

func (e *Engine) creditPositionProRataAssignedCollateral(cp *CreditPosition) (*uint256.Int, error) {
	dp, err := e.getDebtPosition(cp.DebtPositionID)
	if err != nil {
		return nil, err
	}
	if dp.FutureValue.IsZero() {
		return new(uint256.Int), nil
	}
	assigned, err := e.debtPositionAssignedCollateral(dp)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDivDown(assigned, cp.Credit, dp.FutureValue)
}

// DebtPositionAssignedCollateral is the borrower's collateral weighted by the
// position's share of their total debt.
func (e *Engine) DebtPositionAssignedCollateral(id uint64) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	dp, err := e.getDebtPosition(id)
	if err != nil {
		return nil, err
	}
	return e.debtPositionAssignedCollateral(dp)
}

// CreditPositionProRataAssignedCollateral further scales the debt position's
// assigned collateral by the position's share of the face value.
func (e *Engine) CreditPositionProRataAssignedCollateral(id uint64) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cp, err := e.getCreditPosition(id)
	if err != nil {
		return nil, err
	}
	return e.creditPositionProRataAssignedCollateral(cp)
}
