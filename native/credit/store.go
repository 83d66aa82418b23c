package credit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
)

var (
	nextDebtIDKey   = []byte("credit/next-debt-id")
	nextCreditIDKey = []byte("credit/next-credit-id")
	variableRateKey = []byte("credit/variable-rate")
	configKey       = []byte("credit/config")
)

func debtKey(id uint64) []byte   { return []byte(fmt.Sprintf("credit/debt/%d", id)) }
func creditKey(id uint64) []byte { return []byte(fmt.Sprintf("credit/credit/%d", id)) }
func userKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("credit/user/%x", addr.Bytes()))
}

// engineState is the journaled key/value store the engine persists into.
// Snapshot and RevertToSnapshot make every order all-or-nothing.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// storedCurve keeps APRs as sign and magnitude because RLP only encodes
// non-negative integers.
type storedCurve struct {
	Tenors      []uint64
	APRs        []*big.Int
	Negative    []bool
	Multipliers []*uint256.Int
}

func encodeCurve(c curve.YieldCurve) storedCurve {
	out := storedCurve{Tenors: append([]uint64{}, c.Tenors...)}
	for _, apr := range c.APRs {
		if apr == nil {
			apr = new(big.Int)
		}
		out.APRs = append(out.APRs, new(big.Int).Abs(apr))
		out.Negative = append(out.Negative, apr.Sign() < 0)
	}
	for _, m := range c.MarketRateMultipliers {
		out.Multipliers = append(out.Multipliers, cloneAmount(m))
	}
	return out
}

func decodeCurve(s storedCurve) curve.YieldCurve {
	if len(s.Tenors) == 0 && len(s.APRs) == 0 && len(s.Multipliers) == 0 {
		return curve.YieldCurve{}
	}
	out := curve.YieldCurve{Tenors: append([]uint64{}, s.Tenors...)}
	for i, mag := range s.APRs {
		apr := new(big.Int).Set(mag)
		if i < len(s.Negative) && s.Negative[i] {
			apr.Neg(apr)
		}
		out.APRs = append(out.APRs, apr)
	}
	for _, m := range s.Multipliers {
		out.MarketRateMultipliers = append(out.MarketRateMultipliers, cloneAmount(m))
	}
	return out
}

type storedUser struct {
	LoanMaxDueDate                    uint64
	LoanCurve                         storedCurve
	BorrowCurve                       storedCurve
	OpeningLimitBorrowCR              *uint256.Int
	AllCreditPositionsForSaleDisabled bool
}

// VariableRate is the last reference borrow rate pushed to the market.
type VariableRate struct {
	Rate      *uint256.Int
	UpdatedAt uint64
}

func (e *Engine) getDebtPosition(id uint64) (*DebtPosition, error) {
	if !IsDebtPositionID(id) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPositionID, id)
	}
	pos := new(DebtPosition)
	ok, err := e.state.KVGet(debtKey(id), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDebtPositionNotFound, id)
	}
	return pos, nil
}

func (e *Engine) putDebtPosition(id uint64, pos *DebtPosition) error {
	return e.state.KVPut(debtKey(id), pos)
}

func (e *Engine) getCreditPosition(id uint64) (*CreditPosition, error) {
	if !IsCreditPositionID(id) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPositionID, id)
	}
	pos := new(CreditPosition)
	ok, err := e.state.KVGet(creditKey(id), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCreditPositionNotFound, id)
	}
	return pos, nil
}

func (e *Engine) putCreditPosition(id uint64, pos *CreditPosition) error {
	return e.state.KVPut(creditKey(id), pos)
}

func (e *Engine) getDebtPositionByCreditPositionID(id uint64) (*CreditPosition, *DebtPosition, error) {
	cp, err := e.getCreditPosition(id)
	if err != nil {
		return nil, nil, err
	}
	dp, err := e.getDebtPosition(cp.DebtPositionID)
	if err != nil {
		return nil, nil, err
	}
	return cp, dp, nil
}

func (e *Engine) readCounter(key []byte, start uint64) (uint64, error) {
	var next uint64
	ok, err := e.state.KVGet(key, &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		return start, nil
	}
	return next, nil
}

func (e *Engine) nextID(key []byte, start uint64) (uint64, error) {
	id, err := e.readCounter(key, start)
	if err != nil {
		return 0, err
	}
	if err := e.state.KVPut(key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) getUser(addr common.Address) (*User, error) {
	stored := new(storedUser)
	ok, err := e.state.KVGet(userKey(addr), stored)
	if err != nil {
		return nil, err
	}
	user := &User{OpeningLimitBorrowCR: new(uint256.Int)}
	if !ok {
		return user, nil
	}
	user.LoanOffer = LoanOffer{MaxDueDate: stored.LoanMaxDueDate, Curve: decodeCurve(stored.LoanCurve)}
	user.BorrowOffer = BorrowOffer{Curve: decodeCurve(stored.BorrowCurve)}
	user.OpeningLimitBorrowCR = cloneAmount(stored.OpeningLimitBorrowCR)
	user.AllCreditPositionsForSaleDisabled = stored.AllCreditPositionsForSaleDisabled
	return user, nil
}

func (e *Engine) putUser(addr common.Address, user *User) error {
	return e.state.KVPut(userKey(addr), &storedUser{
		LoanMaxDueDate:                    user.LoanOffer.MaxDueDate,
		LoanCurve:                         encodeCurve(user.LoanOffer.Curve),
		BorrowCurve:                       encodeCurve(user.BorrowOffer.Curve),
		OpeningLimitBorrowCR:              cloneAmount(user.OpeningLimitBorrowCR),
		AllCreditPositionsForSaleDisabled: user.AllCreditPositionsForSaleDisabled,
	})
}

func (e *Engine) getVariableRate() (*VariableRate, error) {
	rate := new(VariableRate)
	ok, err := e.state.KVGet(variableRateKey, rate)
	if err != nil {
		return nil, err
	}
	if !ok || rate.Rate == nil {
		return &VariableRate{Rate: new(uint256.Int)}, nil
	}
	return rate, nil
}
