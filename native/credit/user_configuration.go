package credit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SetUserConfigurationParams updates the caller's risk override and sale
// flags. CreditPositionIDsForSale applies to every listed position.
type SetUserConfigurationParams struct {
	OpeningLimitBorrowCR              *uint256.Int
	AllCreditPositionsForSaleDisabled bool
	CreditPositionIDsForSale          bool
	CreditPositionIDs                 []uint64
}

// SetUserConfiguration stores the caller's configuration and toggles the
// sale flag on positions they hold.
func (e *Engine) SetUserConfiguration(caller common.Address, params SetUserConfigurationParams) error {
	_, err := execute[struct{}](e, "setUserConfiguration", caller, params)
	return err
}

func (p SetUserConfigurationParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	for _, id := range p.CreditPositionIDs {
		cp, dp, err := e.getDebtPositionByCreditPositionID(id)
		if err != nil {
			return nil, err
		}
		if cp.Lender != ctx.caller {
			return nil, fmt.Errorf("%w: %d", ErrUserConfigurationLender, id)
		}
		if status := dp.Status(ctx.now); status != LoanActive {
			return nil, fmt.Errorf("%w: credit position %d is %s", ErrLoanNotActive, id, status)
		}
	}

	user, err := e.getUser(ctx.caller)
	if err != nil {
		return nil, err
	}
	user.OpeningLimitBorrowCR = cloneAmount(p.OpeningLimitBorrowCR)
	user.AllCreditPositionsForSaleDisabled = p.AllCreditPositionsForSaleDisabled
	if err := e.putUser(ctx.caller, user); err != nil {
		return nil, err
	}
	for _, id := range p.CreditPositionIDs {
		cp, err := e.getCreditPosition(id)
		if err != nil {
			return nil, err
		}
		cp.ForSale = p.CreditPositionIDsForSale
		if err := e.putCreditPosition(id, cp); err != nil {
			return nil, err
		}
		e.emitCreditPosition(TypeUpdateCreditPosition, id, cp)
	}
	e.emit(newEvent(TypeSetUserConfiguration, map[string]string{
		"account":                           addrAttr(ctx.caller),
		"openingLimitBorrowCR":              amountAttr(user.OpeningLimitBorrowCR),
		"allCreditPositionsForSaleDisabled": boolAttr(p.AllCreditPositionsForSaleDisabled),
		"creditPositionIdsForSale":          boolAttr(p.CreditPositionIDsForSale),
		"positions":                         idAttr(uint64(len(p.CreditPositionIDs))),
	}))
	return struct{}{}, nil
}
