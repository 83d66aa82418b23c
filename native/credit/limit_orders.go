package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"fixedcredit/native/credit/curve"
)

// SellCreditLimitParams posts the caller's borrow offer. A null curve
// withdraws it.
type SellCreditLimitParams struct {
	Curve curve.YieldCurve
}

// BuyCreditLimitParams posts the caller's loan offer. Offers never fund loans
// maturing after MaxDueDate. A null curve with a zero MaxDueDate withdraws it.
type BuyCreditLimitParams struct {
	MaxDueDate uint64
	Curve      curve.YieldCurve
}

// SellCreditLimit stores the caller's standing borrow offer.
func (e *Engine) SellCreditLimit(caller common.Address, params SellCreditLimitParams) error {
	_, err := execute[struct{}](e, "sellCreditLimit", caller, params)
	return err
}

// BuyCreditLimit stores the caller's standing loan offer.
func (e *Engine) BuyCreditLimit(caller common.Address, params BuyCreditLimitParams) error {
	_, err := execute[struct{}](e, "buyCreditLimit", caller, params)
	return err
}

func (e *Engine) validateCurve(c curve.YieldCurve) error {
	if err := curve.Validate(c, e.cfg.Risk.MinTenor, e.cfg.Risk.MaxTenor); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}
	return nil
}

func (p SellCreditLimitParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	offer := BorrowOffer{Curve: p.Curve.Clone()}
	if !offer.IsNull() {
		if err := e.validateCurve(offer.Curve); err != nil {
			return nil, err
		}
	}
	user, err := e.getUser(ctx.caller)
	if err != nil {
		return nil, err
	}
	user.BorrowOffer = offer
	if err := e.putUser(ctx.caller, user); err != nil {
		return nil, err
	}
	e.emit(newEvent(TypeSellCreditLimit, map[string]string{
		"borrower": addrAttr(ctx.caller),
		"points":   idAttr(uint64(len(offer.Curve.Tenors))),
		"null":     boolAttr(offer.IsNull()),
	}))
	return struct{}{}, nil
}

func (p BuyCreditLimitParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	offer := LoanOffer{MaxDueDate: p.MaxDueDate, Curve: p.Curve.Clone()}
	if !offer.IsNull() {
		if offer.MaxDueDate == 0 {
			return nil, ErrNullMaxDueDate
		}
		if offer.MaxDueDate < ctx.now+e.cfg.Risk.MinTenor {
			return nil, fmt.Errorf("%w: %d before %d", ErrInvalidDueDate, offer.MaxDueDate, ctx.now+e.cfg.Risk.MinTenor)
		}
		if err := e.validateCurve(offer.Curve); err != nil {
			return nil, err
		}
	}
	user, err := e.getUser(ctx.caller)
	if err != nil {
		return nil, err
	}
	user.LoanOffer = offer
	if err := e.putUser(ctx.caller, user); err != nil {
		return nil, err
	}
	e.emit(newEvent(TypeBuyCreditLimit, map[string]string{
		"lender":     addrAttr(ctx.caller),
		"maxDueDate": idAttr(offer.MaxDueDate),
		"points":     idAttr(uint64(len(offer.Curve.Tenors))),
		"null":       boolAttr(offer.IsNull()),
	}))
	return struct{}{}, nil
}
