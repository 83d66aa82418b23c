package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

// BuyCreditMarketParams lends against a standing borrow offer. With
// CreditPositionID set to ReservedID a new loan is originated to Borrower;
// otherwise the caller buys an existing claim that its holder listed for
// sale, priced off the holder's borrow offer at the remaining tenor.
type BuyCreditMarketParams struct {
	Borrower         common.Address
	CreditPositionID uint64
	Amount           *uint256.Int
	Tenor            uint64
	Deadline         uint64
	MinAPR           *uint256.Int
	// ExactAmountIn treats Amount as cash paid; otherwise as credit bought.
	ExactAmountIn bool
}

// BuyCreditMarketResult carries the legs actually applied.
type BuyCreditMarketResult struct {
	CreditPositionID uint64
	DebtPositionID   uint64
	Seller           common.Address
	CashAmountIn     *uint256.Int
	CreditAmountOut  *uint256.Int
	Fees             *uint256.Int
	Tenor            uint64
	APR              *uint256.Int
}

// BuyCreditMarket lends to a borrower's standing offer or buys listed credit.
func (e *Engine) BuyCreditMarket(caller common.Address, params BuyCreditMarketParams) (*BuyCreditMarketResult, error) {
	return execute[*BuyCreditMarketResult](e, "buyCreditMarket", caller, params)
}

type buyCreditQuote struct {
	seller       common.Address
	tenor        uint64
	apr          *uint256.Int
	ratePerTenor *uint256.Int
	existing     *CreditPosition
}

func (p BuyCreditMarketParams) validate(e *Engine, ctx execContext) (*buyCreditQuote, error) {
	q := &buyCreditQuote{seller: p.Borrower, tenor: p.Tenor}
	if p.CreditPositionID == ReservedID {
		if p.Borrower == (common.Address{}) {
			return nil, ErrNullAddress
		}
		if err := e.validateTenor(p.Tenor); err != nil {
			return nil, err
		}
	} else {
		cp, dp, err := e.getDebtPositionByCreditPositionID(p.CreditPositionID)
		if err != nil {
			return nil, err
		}
		ok, err := e.isCreditPositionTransferrable(ctx.now, p.CreditPositionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotTransferrable, p.CreditPositionID)
		}
		holder, err := e.getUser(cp.Lender)
		if err != nil {
			return nil, err
		}
		if holder.AllCreditPositionsForSaleDisabled || !cp.ForSale {
			return nil, fmt.Errorf("%w: %d", ErrCreditNotForSale, p.CreditPositionID)
		}
		q.seller = cp.Lender
		q.tenor = dp.DueDate - ctx.now
		q.existing = cp
	}
	if q.seller == ctx.caller {
		return nil, fmt.Errorf("%w: counterparty is the caller", ErrInvalidBorrower)
	}
	seller, err := e.getUser(q.seller)
	if err != nil {
		return nil, err
	}
	if seller.BorrowOffer.IsNull() {
		return nil, fmt.Errorf("%w: %s has no borrow offer", ErrInvalidOffer, q.seller.Hex())
	}
	if err := requirePositive(p.Amount); err != nil {
		return nil, err
	}
	if err := e.checkDeadline(ctx, p.Deadline); err != nil {
		return nil, err
	}
	q.apr, q.ratePerTenor, err = e.quote(seller.BorrowOffer.Curve, q.tenor, ctx.now)
	if err != nil {
		return nil, err
	}
	if p.MinAPR != nil && q.apr.Lt(p.MinAPR) {
		return nil, fmt.Errorf("%w: %s < %s", ErrAPRBelowMin, q.apr.Dec(), p.MinAPR.Dec())
	}
	return q, nil
}

func (p BuyCreditMarketParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	q, err := p.validate(e, ctx)
	if err != nil {
		return nil, err
	}
	gross, err := onePlus(q.ratePerTenor)
	if err != nil {
		return nil, err
	}

	var cashAmountIn, creditAmountOut, fees *uint256.Int
	if p.ExactAmountIn {
		cashAmountIn = cloneAmount(p.Amount)
		var maxCashAmountIn, maxCredit *uint256.Int
		if q.existing == nil {
			maxCashAmountIn = cashAmountIn
			maxCredit, err = fixedpoint.MulDivDown(cashAmountIn, gross, fixedpoint.Percent)
		} else {
			maxCredit = q.existing.Credit
			maxCashAmountIn, err = fixedpoint.MulDivUp(maxCredit, fixedpoint.Percent, gross)
		}
		if err != nil {
			return nil, err
		}
		creditAmountOut, fees, err = e.getCreditAmountOut(cashAmountIn, maxCashAmountIn, maxCredit, q.ratePerTenor, q.tenor)
	} else {
		creditAmountOut = cloneAmount(p.Amount)
		maxCredit := creditAmountOut
		if q.existing != nil {
			maxCredit = q.existing.Credit
		}
		cashAmountIn, fees, err = e.getCashAmountIn(creditAmountOut, maxCredit, q.ratePerTenor, q.tenor)
	}
	if err != nil {
		return nil, err
	}

	var debtID, creditID uint64
	if q.existing == nil {
		debtID, creditID, err = e.createDebtAndCreditPositions(ctx, ctx.caller, q.seller, creditAmountOut, ctx.now+q.tenor)
	} else {
		debtID = q.existing.DebtPositionID
		creditID, err = e.createCreditPosition(p.CreditPositionID, ctx.caller, creditAmountOut, true)
	}
	if err != nil {
		return nil, err
	}
	proceeds := new(uint256.Int).Sub(cashAmountIn, fees)
	if err := e.transferCash(ctx.caller, q.seller, proceeds); err != nil {
		return nil, err
	}
	if err := e.transferCash(ctx.caller, e.cfg.Fees.FeeRecipient, fees); err != nil {
		return nil, err
	}

	if q.existing == nil {
		if err := e.validateUserIsNotBelowOpeningLimitBorrowCR(q.seller); err != nil {
			return nil, err
		}
	}
	if err := e.validateVariablePoolHasEnoughLiquidity(proceeds); err != nil {
		return nil, err
	}

	e.emit(newEvent(TypeBuyCreditMarket, map[string]string{
		"lender":           addrAttr(ctx.caller),
		"seller":           addrAttr(q.seller),
		"creditPositionId": idAttr(creditID),
		"debtPositionId":   idAttr(debtID),
		"cashAmountIn":     amountAttr(cashAmountIn),
		"creditAmountOut":  amountAttr(creditAmountOut),
		"fees":             amountAttr(fees),
		"tenor":            idAttr(q.tenor),
		"apr":              amountAttr(q.apr),
	}))
	return &BuyCreditMarketResult{
		CreditPositionID: creditID,
		DebtPositionID:   debtID,
		Seller:           q.seller,
		CashAmountIn:     cashAmountIn,
		CreditAmountOut:  creditAmountOut,
		Fees:             fees,
		Tenor:            q.tenor,
		APR:              q.apr,
	}, nil
}
