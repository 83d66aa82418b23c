package server

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"fixedcredit/native/credit"
	"fixedcredit/native/credit/curve"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// parseAmount reads a base-unit decimal string. Empty input yields nil.
func parseAmount(field, raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return v, nil
}

func requireAmount(field, raw string) (*uint256.Int, error) {
	v, err := parseAmount(field, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, badRequest("%s is required", field)
	}
	return v, nil
}

// parsePositionID reads a decimal id. Empty input selects a new position.
func parsePositionID(field, raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return credit.ReservedID, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("%s: %v", field, err)
	}
	return id, nil
}

func requirePositionID(field, raw string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, badRequest("%s is required", field)
	}
	return parsePositionID(field, raw)
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, badRequest("%s: %q is not an address", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// percent renders an 18-decimal rate as a human percentage.
func percent(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -16).String()
}

type curveRequest struct {
	Tenors                []uint64 `json:"tenors"`
	APRs                  []string `json:"aprs"`
	MarketRateMultipliers []string `json:"marketRateMultipliers"`
}

func (c curveRequest) toCurve() (curve.YieldCurve, error) {
	out := curve.YieldCurve{Tenors: append([]uint64(nil), c.Tenors...)}
	for i, raw := range c.APRs {
		apr, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok {
			return curve.YieldCurve{}, badRequest("aprs[%d]: %q is not an integer", i, raw)
		}
		out.APRs = append(out.APRs, apr)
	}
	multipliers := c.MarketRateMultipliers
	if len(multipliers) == 0 {
		multipliers = make([]string, len(c.Tenors))
	}
	for i, raw := range multipliers {
		m, err := parseAmount(fmt.Sprintf("marketRateMultipliers[%d]", i), raw)
		if err != nil {
			return curve.YieldCurve{}, err
		}
		if m == nil {
			m = new(uint256.Int)
		}
		out.MarketRateMultipliers = append(out.MarketRateMultipliers, m)
	}
	return out, nil
}

type transferRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

func (r transferRequest) deposit(caller common.Address) (credit.DepositParams, error) {
	amount, err := requireAmount("amount", r.Amount)
	if err != nil {
		return credit.DepositParams{}, err
	}
	to, err := parseAddress("to", r.To)
	if err != nil {
		return credit.DepositParams{}, err
	}
	if to == (common.Address{}) {
		to = caller
	}
	return credit.DepositParams{Token: r.Token, Amount: amount, To: to}, nil
}

func (r transferRequest) withdraw(caller common.Address) (credit.WithdrawParams, error) {
	p, err := r.deposit(caller)
	if err != nil {
		return credit.WithdrawParams{}, err
	}
	return credit.WithdrawParams{Token: p.Token, Amount: p.Amount, To: p.To}, nil
}

type sellLimitRequest struct {
	Curve curveRequest `json:"curve"`
}

func (r sellLimitRequest) params() (credit.SellCreditLimitParams, error) {
	c, err := r.Curve.toCurve()
	return credit.SellCreditLimitParams{Curve: c}, err
}

type buyLimitRequest struct {
	MaxDueDate uint64       `json:"maxDueDate"`
	Curve      curveRequest `json:"curve"`
}

func (r buyLimitRequest) params() (credit.BuyCreditLimitParams, error) {
	c, err := r.Curve.toCurve()
	return credit.BuyCreditLimitParams{MaxDueDate: r.MaxDueDate, Curve: c}, err
}

type marketOrderRequest struct {
	Counterparty     string `json:"counterparty"`
	CreditPositionID string `json:"creditPositionId"`
	Amount           string `json:"amount"`
	Tenor            uint64 `json:"tenor"`
	Deadline         uint64 `json:"deadline"`
	APRLimit         string `json:"aprLimit"`
	ExactAmountIn    bool   `json:"exactAmountIn"`
}

type marketOrderFields struct {
	counterparty common.Address
	creditID     uint64
	amount       *uint256.Int
	aprLimit     *uint256.Int
}

func (r marketOrderRequest) parse() (marketOrderFields, error) {
	var out marketOrderFields
	var err error
	if out.counterparty, err = parseAddress("counterparty", r.Counterparty); err != nil {
		return out, err
	}
	if out.creditID, err = parsePositionID("creditPositionId", r.CreditPositionID); err != nil {
		return out, err
	}
	if out.amount, err = requireAmount("amount", r.Amount); err != nil {
		return out, err
	}
	out.aprLimit, err = parseAmount("aprLimit", r.APRLimit)
	return out, err
}

// sellMarket maps aprLimit to the maximum APR the seller accepts; an absent
// limit accepts any rate.
func (r marketOrderRequest) sellMarket() (credit.SellCreditMarketParams, error) {
	f, err := r.parse()
	if err != nil {
		return credit.SellCreditMarketParams{}, err
	}
	maxAPR := f.aprLimit
	if maxAPR == nil {
		maxAPR = new(uint256.Int).SetAllOne()
	}
	return credit.SellCreditMarketParams{
		Lender:           f.counterparty,
		CreditPositionID: f.creditID,
		Amount:           f.amount,
		Tenor:            r.Tenor,
		Deadline:         r.Deadline,
		MaxAPR:           maxAPR,
		ExactAmountIn:    r.ExactAmountIn,
	}, nil
}

func (r marketOrderRequest) buyMarket() (credit.BuyCreditMarketParams, error) {
	f, err := r.parse()
	if err != nil {
		return credit.BuyCreditMarketParams{}, err
	}
	minAPR := f.aprLimit
	if minAPR == nil {
		minAPR = new(uint256.Int)
	}
	return credit.BuyCreditMarketParams{
		Borrower:         f.counterparty,
		CreditPositionID: f.creditID,
		Amount:           f.amount,
		Tenor:            r.Tenor,
		Deadline:         r.Deadline,
		MinAPR:           minAPR,
		ExactAmountIn:    r.ExactAmountIn,
	}, nil
}

type positionRequest struct {
	DebtPositionID   string `json:"debtPositionId"`
	CreditPositionID string `json:"creditPositionId"`
}

func (r positionRequest) repay() (credit.RepayParams, error) {
	id, err := requirePositionID("debtPositionId", r.DebtPositionID)
	return credit.RepayParams{DebtPositionID: id}, err
}

func (r positionRequest) claim() (credit.ClaimParams, error) {
	id, err := requirePositionID("creditPositionId", r.CreditPositionID)
	return credit.ClaimParams{CreditPositionID: id}, err
}

func (r positionRequest) selfLiquidate() (credit.SelfLiquidateParams, error) {
	id, err := requirePositionID("creditPositionId", r.CreditPositionID)
	return credit.SelfLiquidateParams{CreditPositionID: id}, err
}

type liquidateRequest struct {
	DebtPositionID          string `json:"debtPositionId"`
	MinimumCollateralProfit string `json:"minimumCollateralProfit"`
	Deadline                uint64 `json:"deadline"`
	Borrower                string `json:"borrower"`
	MinAPR                  string `json:"minAPR"`
}

func (r liquidateRequest) liquidate() (credit.LiquidateParams, error) {
	id, err := requirePositionID("debtPositionId", r.DebtPositionID)
	if err != nil {
		return credit.LiquidateParams{}, err
	}
	minProfit, err := parseAmount("minimumCollateralProfit", r.MinimumCollateralProfit)
	if err != nil {
		return credit.LiquidateParams{}, err
	}
	if minProfit == nil {
		minProfit = new(uint256.Int)
	}
	return credit.LiquidateParams{DebtPositionID: id, MinimumCollateralProfit: minProfit, Deadline: r.Deadline}, nil
}

func (r liquidateRequest) withReplacement() (credit.LiquidateWithReplacementParams, error) {
	base, err := r.liquidate()
	if err != nil {
		return credit.LiquidateWithReplacementParams{}, err
	}
	borrower, err := parseAddress("borrower", r.Borrower)
	if err != nil {
		return credit.LiquidateWithReplacementParams{}, err
	}
	minAPR, err := parseAmount("minAPR", r.MinAPR)
	if err != nil {
		return credit.LiquidateWithReplacementParams{}, err
	}
	if minAPR == nil {
		minAPR = new(uint256.Int)
	}
	return credit.LiquidateWithReplacementParams{
		DebtPositionID:          base.DebtPositionID,
		Borrower:                borrower,
		MinimumCollateralProfit: base.MinimumCollateralProfit,
		Deadline:                base.Deadline,
		MinAPR:                  minAPR,
	}, nil
}

type compensateRequest struct {
	CreditPositionWithDebtToRepayID string `json:"creditPositionWithDebtToRepayId"`
	CreditPositionToCompensateID    string `json:"creditPositionToCompensateId"`
	Amount                          string `json:"amount"`
}

func (r compensateRequest) params() (credit.CompensateParams, error) {
	repayID, err := requirePositionID("creditPositionWithDebtToRepayId", r.CreditPositionWithDebtToRepayID)
	if err != nil {
		return credit.CompensateParams{}, err
	}
	targetID, err := parsePositionID("creditPositionToCompensateId", r.CreditPositionToCompensateID)
	if err != nil {
		return credit.CompensateParams{}, err
	}
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return credit.CompensateParams{}, err
	}
	if amount == nil {
		amount = new(uint256.Int).SetAllOne()
	}
	return credit.CompensateParams{
		CreditPositionWithDebtToRepayID: repayID,
		CreditPositionToCompensateID:    targetID,
		Amount:                          amount,
	}, nil
}

type userConfigurationRequest struct {
	OpeningLimitBorrowCR              string   `json:"openingLimitBorrowCR"`
	AllCreditPositionsForSaleDisabled bool     `json:"allCreditPositionsForSaleDisabled"`
	CreditPositionIDsForSale          bool     `json:"creditPositionIdsForSale"`
	CreditPositionIDs                 []string `json:"creditPositionIds"`
}

func (r userConfigurationRequest) params() (credit.SetUserConfigurationParams, error) {
	cr, err := parseAmount("openingLimitBorrowCR", r.OpeningLimitBorrowCR)
	if err != nil {
		return credit.SetUserConfigurationParams{}, err
	}
	if cr == nil {
		cr = new(uint256.Int)
	}
	ids := make([]uint64, 0, len(r.CreditPositionIDs))
	for i, raw := range r.CreditPositionIDs {
		id, err := requirePositionID(fmt.Sprintf("creditPositionIds[%d]", i), raw)
		if err != nil {
			return credit.SetUserConfigurationParams{}, err
		}
		ids = append(ids, id)
	}
	return credit.SetUserConfigurationParams{
		OpeningLimitBorrowCR:              cr,
		AllCreditPositionsForSaleDisabled: r.AllCreditPositionsForSaleDisabled,
		CreditPositionIDsForSale:          r.CreditPositionIDsForSale,
		CreditPositionIDs:                 ids,
	}, nil
}

// Position views render ids as strings; credit ids exceed 2^53.
type debtPositionView struct {
	ID                        string         `json:"id"`
	Borrower                  common.Address `json:"borrower"`
	FutureValue               *uint256.Int   `json:"futureValue"`
	DueDate                   uint64         `json:"dueDate"`
	LiquidityIndexAtRepayment *uint256.Int   `json:"liquidityIndexAtRepayment"`
	Status                    string         `json:"status"`
	Liquidatable              bool           `json:"liquidatable"`
}

type creditPositionView struct {
	ID               string         `json:"id"`
	Lender           common.Address `json:"lender"`
	Credit           *uint256.Int   `json:"credit"`
	DebtPositionID   string         `json:"debtPositionId"`
	ForSale          bool           `json:"forSale"`
	Status           string         `json:"status"`
	SelfLiquidatable bool           `json:"selfLiquidatable"`
}

type userView struct {
	Account                           common.Address `json:"account"`
	CollateralAmount                  *uint256.Int   `json:"collateralAmount"`
	CashAmount                        *uint256.Int   `json:"cashAmount"`
	DebtAmount                        *uint256.Int   `json:"debtAmount"`
	CollateralRatio                   *uint256.Int   `json:"collateralRatio"`
	OpeningLimitBorrowCR              *uint256.Int   `json:"openingLimitBorrowCR"`
	AllCreditPositionsForSaleDisabled bool           `json:"allCreditPositionsForSaleDisabled"`
	HasLoanOffer                      bool           `json:"hasLoanOffer"`
	LoanOfferMaxDueDate               uint64         `json:"loanOfferMaxDueDate,omitempty"`
	HasBorrowOffer                    bool           `json:"hasBorrowOffer"`
}

func newUserView(v *credit.UserView) userView {
	out := userView{
		Account:          v.Account,
		CollateralAmount: v.CollateralAmount,
		CashAmount:       v.CashAmount,
		DebtAmount:       v.DebtAmount,
		CollateralRatio:  v.CollateralRatio,
	}
	if v.User != nil {
		out.OpeningLimitBorrowCR = v.User.OpeningLimitBorrowCR
		out.AllCreditPositionsForSaleDisabled = v.User.AllCreditPositionsForSaleDisabled
		out.HasLoanOffer = !v.User.LoanOffer.IsNull()
		out.LoanOfferMaxDueDate = v.User.LoanOffer.MaxDueDate
		out.HasBorrowOffer = !v.User.BorrowOffer.IsNull()
	}
	return out
}

type quoteView struct {
	Account    common.Address `json:"account"`
	Tenor      uint64         `json:"tenor"`
	APR        *uint256.Int   `json:"apr"`
	APRPercent string         `json:"aprPercent"`
}

func idString(id uint64) string { return strconv.FormatUint(id, 10) }
