package credit

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DebtPosition returns a copy of the stored debt position.
func (e *Engine) DebtPosition(id uint64) (*DebtPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	dp, err := e.getDebtPosition(id)
	if err != nil {
		return nil, err
	}
	return dp.clone(), nil
}

// CreditPosition returns a copy of the stored credit position.
func (e *Engine) CreditPosition(id uint64) (*CreditPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cp, err := e.getCreditPosition(id)
	if err != nil {
		return nil, err
	}
	return cp.clone(), nil
}

// PositionsCount returns how many debt and credit positions were ever
// created. Ids are never reused.
func (e *Engine) PositionsCount() (debt uint64, credit uint64, err error) {
	if err := e.ready(); err != nil {
		return 0, 0, err
	}
	nextDebt, err := e.readCounter(nextDebtIDKey, DebtPositionIDStart)
	if err != nil {
		return 0, 0, err
	}
	nextCredit, err := e.readCounter(nextCreditIDKey, CreditPositionIDStart)
	if err != nil {
		return 0, 0, err
	}
	return nextDebt - DebtPositionIDStart, nextCredit - CreditPositionIDStart, nil
}

// LoanStatus derives the status of a debt or credit position at the current
// time. A credit position reports the status of its loan.
func (e *Engine) LoanStatus(id uint64) (LoanStatus, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	var dp *DebtPosition
	var err error
	if IsDebtPositionID(id) {
		dp, err = e.getDebtPosition(id)
	} else {
		_, dp, err = e.getDebtPositionByCreditPositionID(id)
	}
	if err != nil {
		return 0, err
	}
	return dp.Status(e.now()), nil
}

// IsDebtPositionLiquidatable reports whether id can be liquidated now.
func (e *Engine) IsDebtPositionLiquidatable(id uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.isDebtPositionLiquidatable(e.now(), id)
}

// IsCreditPositionSelfLiquidatable reports whether the holder of id can
// self-liquidate now.
func (e *Engine) IsCreditPositionSelfLiquidatable(id uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.isCreditPositionSelfLiquidatable(e.now(), id)
}

// UserView summarises an account.
type UserView struct {
	Account          common.Address
	User             *User
	CollateralAmount *uint256.Int
	CashAmount       *uint256.Int
	DebtAmount       *uint256.Int
	CollateralRatio  *uint256.Int
}

// UserView returns the account's offers, balances and collateral ratio.
func (e *Engine) UserView(account common.Address) (*UserView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.getUser(account)
	if err != nil {
		return nil, err
	}
	collateral, err := e.tokens.Collateral.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	cash, err := e.tokens.Cash.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	debt, err := e.tokens.Debt.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	ratio, err := e.CollateralRatio(account)
	if err != nil {
		return nil, err
	}
	return &UserView{
		Account:          account,
		User:             user,
		CollateralAmount: collateral,
		CashAmount:       cash,
		DebtAmount:       debt,
		CollateralRatio:  ratio,
	}, nil
}
