package credit

import "errors"

// Structural and input failures.
var (
	ErrNilState          = errors.New("credit: state not configured")
	ErrNullAmount        = errors.New("credit: amount must be positive")
	ErrNullAddress       = errors.New("credit: zero address")
	ErrNullOffer         = errors.New("credit: no standing offer")
	ErrInvalidOffer      = errors.New("credit: invalid offer")
	ErrInvalidPositionID = errors.New("credit: invalid position id")
	ErrInvalidToken      = errors.New("credit: unsupported token")
	ErrInvalidTenor      = errors.New("credit: tenor out of range")
	ErrInvalidDueDate    = errors.New("credit: invalid due date")
	ErrNullMaxDueDate    = errors.New("credit: max due date required")
	ErrInvalidConfig     = errors.New("credit: invalid configuration")
	ErrUnknownConfigKey  = errors.New("credit: unknown configuration key")
	ErrUnauthorized      = errors.New("credit: caller not authorised")
	ErrInvalidLender     = errors.New("credit: invalid lender")
	ErrInvalidBorrower   = errors.New("credit: invalid borrower")
	ErrDueDateMismatch   = errors.New("credit: due dates not compatible")
	ErrSamePosition      = errors.New("credit: source and target positions are identical")
	ErrInvalidVariable   = errors.New("credit: invalid variable rate update")
	ErrNilCollaborator   = errors.New("credit: collaborator not configured")
	ErrNilOperation      = errors.New("credit: nil operation")
)

// State precondition failures.
var (
	ErrLoanAlreadyRepaid       = errors.New("credit: loan already repaid")
	ErrLoanNotRepaid           = errors.New("credit: loan not repaid")
	ErrLoanNotActive           = errors.New("credit: loan not active")
	ErrCreditPositionClaimed   = errors.New("credit: credit position already claimed")
	ErrCreditNotForSale        = errors.New("credit: credit position not for sale")
	ErrNotTransferrable        = errors.New("credit: credit position not transferrable")
	ErrNotLiquidatable         = errors.New("credit: debt position not liquidatable")
	ErrNotSelfLiquidatable     = errors.New("credit: credit position not self liquidatable")
	ErrPartialRepayment        = errors.New("credit: partial repayment not supported")
	ErrNotEnoughCredit         = errors.New("credit: not enough credit")
	ErrCreditBelowMinimum      = errors.New("credit: credit lower than minimum credit")
	ErrCreditBelowMinimumOpen  = errors.New("credit: credit lower than minimum credit opening")
	ErrCreditPositionNotFound  = errors.New("credit: credit position not found")
	ErrDebtPositionNotFound    = errors.New("credit: debt position not found")
	ErrMulticallNested         = errors.New("credit: nested batch")
	ErrInsufficientCollateral  = errors.New("credit: insufficient collateral balance")
	ErrInsufficientCash        = errors.New("credit: insufficient cash balance")
	ErrUserConfigurationLender = errors.New("credit: only the lender may update a credit position")
)

// Economic limit failures.
var (
	ErrAPRAboveMax             = errors.New("credit: APR above maximum")
	ErrAPRBelowMin             = errors.New("credit: APR below minimum")
	ErrDeadlinePassed          = errors.New("credit: deadline passed")
	ErrDueDateAfterMaxDueDate  = errors.New("credit: due date after lender max due date")
	ErrCRBelowOpeningLimit     = errors.New("credit: collateral ratio below opening limit")
	ErrUserUnderwater          = errors.New("credit: user underwater")
	ErrNotEnoughLiquidity      = errors.New("credit: not enough pool liquidity")
	ErrBorrowATokenCapExceeded = errors.New("credit: cash supply cap exceeded")
	ErrCapIncreaseExceedsDebt  = errors.New("credit: cash supply increase exceeds debt decrease")
	ErrNotEnoughCash           = errors.New("credit: not enough cash")
	ErrCollateralProfitTooLow  = errors.New("credit: liquidator collateral profit below minimum")
)

// Oracle and reference rate failures. Errors raised by the feed itself and by
// the curve engine are wrapped and remain matchable with errors.Is.
var (
	ErrInvalidPrice = errors.New("credit: invalid price")
	ErrStaleRate    = errors.New("credit: stale variable rate")
)
