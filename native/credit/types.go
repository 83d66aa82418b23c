package credit

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
)

const moduleName = "credit"

const (
	// DebtPositionIDStart is the first id handed out to a debt position.
	DebtPositionIDStart uint64 = 0
	// CreditPositionIDStart is the first credit position id. The two id
	// ranges never overlap, so an id alone identifies the table.
	CreditPositionIDStart uint64 = 1 << 63
	// ReservedID in an order means "create a new position".
	ReservedID uint64 = math.MaxUint64
)

// LoanStatus is derived from a debt position, never stored.
type LoanStatus uint8

const (
	LoanActive LoanStatus = iota
	LoanOverdue
	LoanRepaid
)

func (s LoanStatus) String() string {
	switch s {
	case LoanActive:
		return "ACTIVE"
	case LoanOverdue:
		return "OVERDUE"
	case LoanRepaid:
		return "REPAID"
	default:
		return "UNKNOWN"
	}
}

// DebtPosition is a borrower's obligation to pay FutureValue at DueDate.
type DebtPosition struct {
	Borrower    common.Address
	FutureValue *uint256.Int
	DueDate     uint64
	// LiquidityIndexAtRepayment is zero until the debt is settled.
	LiquidityIndexAtRepayment *uint256.Int
}

// Repaid reports whether the position has been settled.
func (d *DebtPosition) Repaid() bool {
	return d.LiquidityIndexAtRepayment != nil && !d.LiquidityIndexAtRepayment.IsZero()
}

// Status derives the loan status at now.
func (d *DebtPosition) Status(now uint64) LoanStatus {
	switch {
	case d.Repaid():
		return LoanRepaid
	case now > d.DueDate:
		return LoanOverdue
	default:
		return LoanActive
	}
}

func (d *DebtPosition) clone() *DebtPosition {
	return &DebtPosition{
		Borrower:                  d.Borrower,
		FutureValue:               cloneAmount(d.FutureValue),
		DueDate:                   d.DueDate,
		LiquidityIndexAtRepayment: cloneAmount(d.LiquidityIndexAtRepayment),
	}
}

// CreditPosition is a lender's claim on part of a debt position.
type CreditPosition struct {
	Lender         common.Address
	Credit         *uint256.Int
	DebtPositionID uint64
	ForSale        bool
}

// Claimed reports whether the claim has been exhausted.
func (c *CreditPosition) Claimed() bool {
	return c.Credit == nil || c.Credit.IsZero()
}

func (c *CreditPosition) clone() *CreditPosition {
	return &CreditPosition{
		Lender:         c.Lender,
		Credit:         cloneAmount(c.Credit),
		DebtPositionID: c.DebtPositionID,
		ForSale:        c.ForSale,
	}
}

// LoanOffer is a lender's standing quote. A null curve withdraws it.
type LoanOffer struct {
	MaxDueDate uint64
	Curve      curve.YieldCurve
}

// IsNull reports whether no loan offer is posted.
func (o LoanOffer) IsNull() bool { return o.MaxDueDate == 0 && o.Curve.IsNull() }

// BorrowOffer is a borrower's standing quote. A null curve withdraws it.
type BorrowOffer struct {
	Curve curve.YieldCurve
}

// IsNull reports whether no borrow offer is posted.
func (o BorrowOffer) IsNull() bool { return o.Curve.IsNull() }

// User holds the per-account offers and risk overrides.
type User struct {
	LoanOffer   LoanOffer
	BorrowOffer BorrowOffer
	// OpeningLimitBorrowCR raises the opening CR for this borrower. Zero
	// leaves the protocol value in force.
	OpeningLimitBorrowCR              *uint256.Int
	AllCreditPositionsForSaleDisabled bool
}

// IsDebtPositionID reports whether id falls in the debt position range.
func IsDebtPositionID(id uint64) bool { return id < CreditPositionIDStart }

// IsCreditPositionID reports whether id falls in the credit position range.
func IsCreditPositionID(id uint64) bool {
	return id >= CreditPositionIDStart && id != ReservedID
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
