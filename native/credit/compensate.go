package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// CompensateParams extinguishes debt owed by the caller by handing the holder
// of CreditPositionWithDebtToRepayID another claim of equal face value. With
// CreditPositionToCompensateID set to ReservedID the caller mints that claim
// against themselves, maturing with the debt it replaces.
type CompensateParams struct {
	CreditPositionWithDebtToRepayID uint64
	CreditPositionToCompensateID    uint64
	Amount                          *uint256.Int
}

// CompensateResult reports the amount offset and the claim handed over.
type CompensateResult struct {
	Amount             *uint256.Int
	CreditPositionID   uint64
	FragmentationFee   *uint256.Int
	RepaidDebtPosition uint64
}

// Compensate offsets the caller's debt with credit they hold.
func (e *Engine) Compensate(caller common.Address, params CompensateParams) (*CompensateResult, error) {
	return execute[*CompensateResult](e, "compensate", caller, params)
}

func (p CompensateParams) validate(e *Engine, ctx execContext) (*CreditPosition, *DebtPosition, *uint256.Int, error) {
	toRepay, debt, err := e.getDebtPositionByCreditPositionID(p.CreditPositionWithDebtToRepayID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := requirePositive(p.Amount); err != nil {
		return nil, nil, nil, err
	}
	amount := fixedpoint.Min(p.Amount, toRepay.Credit)

	ok, err := e.isCreditPositionTransferrable(ctx.now, p.CreditPositionWithDebtToRepayID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %d", ErrNotTransferrable, p.CreditPositionWithDebtToRepayID)
	}
	if status := debt.Status(ctx.now); status != LoanActive {
		return nil, nil, nil, fmt.Errorf("%w: debt position %d is %s", ErrLoanNotActive, toRepay.DebtPositionID, status)
	}

	if p.CreditPositionToCompensateID == ReservedID {
		if err := e.validateTenor(debt.DueDate - ctx.now); err != nil {
			return nil, nil, nil, err
		}
	} else {
		if p.CreditPositionToCompensateID == p.CreditPositionWithDebtToRepayID {
			return nil, nil, nil, fmt.Errorf("%w: %d", ErrSamePosition, p.CreditPositionToCompensateID)
		}
		target, targetDebt, err := e.getDebtPositionByCreditPositionID(p.CreditPositionToCompensateID)
		if err != nil {
			return nil, nil, nil, err
		}
		ok, err := e.isCreditPositionTransferrable(ctx.now, p.CreditPositionToCompensateID)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %d", ErrNotTransferrable, p.CreditPositionToCompensateID)
		}
		if debt.DueDate < targetDebt.DueDate {
			return nil, nil, nil, fmt.Errorf("%w: repaid loan due %d before compensating claim due %d", ErrDueDateMismatch, debt.DueDate, targetDebt.DueDate)
		}
		if target.Lender != debt.Borrower {
			return nil, nil, nil, fmt.Errorf("%w: claim %d is not held by the borrower", ErrInvalidLender, p.CreditPositionToCompensateID)
		}
		amount = fixedpoint.Min(amount, target.Credit)
	}

	if ctx.caller != debt.Borrower {
		return nil, nil, nil, fmt.Errorf("%w: caller is not the borrower of debt position %d", ErrUnauthorized, toRepay.DebtPositionID)
	}
	if amount.IsZero() {
		return nil, nil, nil, ErrNullAmount
	}
	return toRepay, debt, amount, nil
}

func (p CompensateParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	toRepay, debt, amount, err := p.validate(e, ctx)
	if err != nil {
		return nil, err
	}

	targetID := p.CreditPositionToCompensateID
	if targetID == ReservedID {
		_, targetID, err = e.createDebtAndCreditPositions(ctx, ctx.caller, ctx.caller, amount, debt.DueDate)
		if err != nil {
			return nil, err
		}
	}
	if err := e.reduceDebtAndCredit(toRepay.DebtPositionID, p.CreditPositionWithDebtToRepayID, amount); err != nil {
		return nil, err
	}
	creditID, err := e.createCreditPosition(targetID, toRepay.Lender, amount, toRepay.ForSale)
	if err != nil {
		return nil, err
	}

	fee := new(uint256.Int)
	if amount.Lt(toRepay.Credit) {
		fee, err = e.debtTokenAmountToCollateralTokenAmount(e.cfg.Fees.FragmentationFee)
		if err != nil {
			return nil, err
		}
		if err := e.transferCollateral(ctx.caller, e.cfg.Fees.FeeRecipient, fee); err != nil {
			return nil, err
		}
	}
	if err := e.validateUserIsNotBelowOpeningLimitBorrowCR(ctx.caller); err != nil {
		return nil, err
	}

	e.emit(newEvent(TypeCompensate, map[string]string{
		"borrower":                      addrAttr(ctx.caller),
		"creditPositionWithDebtToRepay": idAttr(p.CreditPositionWithDebtToRepayID),
		"creditPositionId":              idAttr(creditID),
		"amount":                        amountAttr(amount),
		"fragmentationFee":              amountAttr(fee),
	}))
	return &CompensateResult{
		Amount:             amount,
		CreditPositionID:   creditID,
		FragmentationFee:   fee,
		RepaidDebtPosition: toRepay.DebtPositionID,
	}, nil
}
