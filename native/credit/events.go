package credit

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/core/types"
)

const (
	TypeDeposit                  = "credit.deposit"
	TypeWithdraw                 = "credit.withdraw"
	TypeSellCreditLimit          = "credit.sell_credit_limit"
	TypeBuyCreditLimit           = "credit.buy_credit_limit"
	TypeSellCreditMarket         = "credit.sell_credit_market"
	TypeBuyCreditMarket          = "credit.buy_credit_market"
	TypeRepay                    = "credit.repay"
	TypeClaim                    = "credit.claim"
	TypeLiquidate                = "credit.liquidate"
	TypeSelfLiquidate            = "credit.self_liquidate"
	TypeLiquidateWithReplacement = "credit.liquidate_with_replacement"
	TypeCompensate               = "credit.compensate"
	TypeSetUserConfiguration     = "credit.set_user_configuration"
	TypeVariableRateUpdated      = "credit.variable_rate_updated"
	TypeConfigUpdated            = "credit.config_updated"
	TypeCreateDebtPosition       = "credit.debt_position.created"
	TypeUpdateDebtPosition       = "credit.debt_position.updated"
	TypeCreateCreditPosition     = "credit.credit_position.created"
	TypeUpdateCreditPosition     = "credit.credit_position.updated"
)

// creditEvent adapts a typed attribute map to the events.Event interface.
type creditEvent struct {
	evt *types.Event
}

func (e creditEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event exposes the underlying attribute record.
func (e creditEvent) Event() *types.Event { return e.evt }

func newEvent(kind string, attrs map[string]string) creditEvent {
	return creditEvent{evt: &types.Event{Type: kind, Attributes: attrs}}
}

func amountAttr(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func idAttr(id uint64) string          { return strconv.FormatUint(id, 10) }
func addrAttr(a common.Address) string { return a.Hex() }
func boolAttr(b bool) string           { return strconv.FormatBool(b) }

func (e *Engine) emitDebtPosition(kind string, id uint64, dp *DebtPosition) {
	e.emit(newEvent(kind, map[string]string{
		"debtPositionId":            idAttr(id),
		"borrower":                  addrAttr(dp.Borrower),
		"futureValue":               amountAttr(dp.FutureValue),
		"dueDate":                   idAttr(dp.DueDate),
		"liquidityIndexAtRepayment": amountAttr(dp.LiquidityIndexAtRepayment),
	}))
}

func (e *Engine) emitCreditPosition(kind string, id uint64, cp *CreditPosition) {
	e.emit(newEvent(kind, map[string]string{
		"creditPositionId": idAttr(id),
		"lender":           addrAttr(cp.Lender),
		"credit":           amountAttr(cp.Credit),
		"debtPositionId":   idAttr(cp.DebtPositionID),
		"forSale":          boolAttr(cp.ForSale),
	}))
}
