package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// SellCreditMarketParams sells credit to Lender's standing loan offer. With
// CreditPositionID set to ReservedID a new loan is originated with the caller
// as borrower; otherwise the caller sells part of an existing claim and the
// remaining tenor of that loan applies, ignoring Tenor.
type SellCreditMarketParams struct {
	Lender           common.Address
	CreditPositionID uint64
	Amount           *uint256.Int
	Tenor            uint64
	Deadline         uint64
	MaxAPR           *uint256.Int
	// ExactAmountIn treats Amount as credit sold; otherwise as cash received.
	ExactAmountIn bool
}

// SellCreditMarketResult carries the legs actually applied.
type SellCreditMarketResult struct {
	CreditPositionID uint64
	DebtPositionID   uint64
	CashAmountOut    *uint256.Int
	CreditAmountIn   *uint256.Int
	Fees             *uint256.Int
	Tenor            uint64
	APR              *uint256.Int
}

// SellCreditMarket borrows from, or sells an existing claim to, a lender's
// standing offer.
func (e *Engine) SellCreditMarket(caller common.Address, params SellCreditMarketParams) (*SellCreditMarketResult, error) {
	return execute[*SellCreditMarketResult](e, "sellCreditMarket", caller, params)
}

type sellCreditQuote struct {
	tenor        uint64
	apr          *uint256.Int
	ratePerTenor *uint256.Int
	existing     *CreditPosition
}

func (p SellCreditMarketParams) validate(e *Engine, ctx execContext) (*sellCreditQuote, error) {
	q := &sellCreditQuote{tenor: p.Tenor}
	if p.CreditPositionID == ReservedID {
		if err := e.validateTenor(p.Tenor); err != nil {
			return nil, err
		}
	} else {
		cp, dp, err := e.getDebtPositionByCreditPositionID(p.CreditPositionID)
		if err != nil {
			return nil, err
		}
		if cp.Lender != ctx.caller {
			return nil, fmt.Errorf("%w: caller does not hold credit position %d", ErrUnauthorized, p.CreditPositionID)
		}
		ok, err := e.isCreditPositionTransferrable(ctx.now, p.CreditPositionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotTransferrable, p.CreditPositionID)
		}
		q.tenor = dp.DueDate - ctx.now
		q.existing = cp
	}
	if p.Lender == (common.Address{}) {
		return nil, ErrNullAddress
	}
	if p.Lender == ctx.caller {
		return nil, fmt.Errorf("%w: lender is the caller", ErrInvalidLender)
	}
	user, err := e.getUser(p.Lender)
	if err != nil {
		return nil, err
	}
	if user.LoanOffer.IsNull() {
		return nil, fmt.Errorf("%w: %s has no loan offer", ErrInvalidOffer, p.Lender.Hex())
	}
	if ctx.now+q.tenor > user.LoanOffer.MaxDueDate {
		return nil, fmt.Errorf("%w: %d > %d", ErrDueDateAfterMaxDueDate, ctx.now+q.tenor, user.LoanOffer.MaxDueDate)
	}
	if err := requirePositive(p.Amount); err != nil {
		return nil, err
	}
	if err := e.checkDeadline(ctx, p.Deadline); err != nil {
		return nil, err
	}
	q.apr, q.ratePerTenor, err = e.quote(user.LoanOffer.Curve, q.tenor, ctx.now)
	if err != nil {
		return nil, err
	}
	if p.MaxAPR != nil && q.apr.Gt(p.MaxAPR) {
		return nil, fmt.Errorf("%w: %s > %s", ErrAPRAboveMax, q.apr.Dec(), p.MaxAPR.Dec())
	}
	return q, nil
}

func (p SellCreditMarketParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	q, err := p.validate(e, ctx)
	if err != nil {
		return nil, err
	}

	var cashAmountOut, creditAmountIn, fees *uint256.Int
	if p.ExactAmountIn {
		creditAmountIn = cloneAmount(p.Amount)
		maxCredit := creditAmountIn
		if q.existing != nil {
			maxCredit = q.existing.Credit
		}
		cashAmountOut, fees, err = e.getCashAmountOut(creditAmountIn, maxCredit, q.ratePerTenor, q.tenor)
	} else {
		cashAmountOut = cloneAmount(p.Amount)
		var maxCashAmountOut, maxCredit *uint256.Int
		maxCashAmountOut, maxCredit, err = e.sellBounds(cashAmountOut, q)
		if err == nil {
			creditAmountIn, fees, err = e.getCreditAmountIn(cashAmountOut, maxCashAmountOut, maxCredit, q.ratePerTenor, q.tenor)
		}
	}
	if err != nil {
		return nil, err
	}

	exitID := p.CreditPositionID
	var debtID uint64
	if q.existing == nil {
		debtID, exitID, err = e.createDebtAndCreditPositions(ctx, ctx.caller, ctx.caller, creditAmountIn, ctx.now+q.tenor)
		if err != nil {
			return nil, err
		}
	} else {
		debtID = q.existing.DebtPositionID
	}
	creditID, err := e.createCreditPosition(exitID, p.Lender, creditAmountIn, true)
	if err != nil {
		return nil, err
	}
	if err := e.transferCash(p.Lender, ctx.caller, cashAmountOut); err != nil {
		return nil, err
	}
	if err := e.transferCash(p.Lender, e.cfg.Fees.FeeRecipient, fees); err != nil {
		return nil, err
	}

	if q.existing == nil {
		if err := e.validateUserIsNotBelowOpeningLimitBorrowCR(ctx.caller); err != nil {
			return nil, err
		}
	}
	if err := e.validateVariablePoolHasEnoughLiquidity(cashAmountOut); err != nil {
		return nil, err
	}

	e.emit(newEvent(TypeSellCreditMarket, map[string]string{
		"borrower":         addrAttr(ctx.caller),
		"lender":           addrAttr(p.Lender),
		"creditPositionId": idAttr(creditID),
		"debtPositionId":   idAttr(debtID),
		"cashAmountOut":    amountAttr(cashAmountOut),
		"creditAmountIn":   amountAttr(creditAmountIn),
		"fees":             amountAttr(fees),
		"tenor":            idAttr(q.tenor),
		"apr":              amountAttr(q.apr),
	}))
	return &SellCreditMarketResult{
		CreditPositionID: creditID,
		DebtPositionID:   debtID,
		CashAmountOut:    cashAmountOut,
		CreditAmountIn:   creditAmountIn,
		Fees:             fees,
		Tenor:            q.tenor,
		APR:              q.apr,
	}, nil
}

// sellBounds returns the cash a full sale would yield and the matching credit
// ceiling. A fresh loan is sized from the requested cash itself.
func (e *Engine) sellBounds(cashAmountOut *uint256.Int, q *sellCreditQuote) (*uint256.Int, *uint256.Int, error) {
	pct, err := e.swapFeePercent(q.tenor)
	if err != nil {
		return nil, nil, err
	}
	if !pct.Lt(fixedpoint.Percent) {
		return nil, nil, fmt.Errorf("%w: swap fee consumes the cash leg", ErrNotEnoughCash)
	}
	net := new(uint256.Int).Sub(fixedpoint.Percent, pct)
	gross, err := onePlus(q.ratePerTenor)
	if err != nil {
		return nil, nil, err
	}
	if q.existing == nil {
		maxCredit, err := fixedpoint.MulDivUp(cashAmountOut, gross, net)
		if err != nil {
			return nil, nil, err
		}
		return cashAmountOut, maxCredit, nil
	}
	maxCash, err := fixedpoint.MulDivDown(q.existing.Credit, net, gross)
	if err != nil {
		return nil, nil, err
	}
	return maxCash, q.existing.Credit, nil
}
