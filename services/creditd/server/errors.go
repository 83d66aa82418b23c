package server

import (
	"errors"
	"net/http"

	nativecommon "fixedcredit/native/common"
	"fixedcredit/native/credit"
	"fixedcredit/native/credit/oracle"
	"fixedcredit/services/creditd/auth"
	"fixedcredit/services/creditd/market"
)

type errorClass struct {
	status int
	code   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusBadRequest, "invalid_request", []error{
		errBadRequest, market.ErrUnknownAsset,
		credit.ErrNullAmount, credit.ErrNullAddress, credit.ErrInvalidOffer, credit.ErrInvalidPositionID,
		credit.ErrInvalidToken, credit.ErrInvalidTenor, credit.ErrInvalidDueDate, credit.ErrNullMaxDueDate,
		credit.ErrInvalidConfig, credit.ErrUnknownConfigKey, credit.ErrInvalidLender, credit.ErrInvalidBorrower,
		credit.ErrSamePosition, credit.ErrInvalidVariable, credit.ErrNilOperation,
		oracle.ErrInvalidPrice, oracle.ErrFutureTime,
	}},
	{http.StatusUnauthorized, "unauthorized", []error{auth.ErrNoIdentity, auth.ErrInvalidToken}},
	{http.StatusForbidden, "forbidden", []error{credit.ErrUnauthorized, credit.ErrUserConfigurationLender}},
	{http.StatusNotFound, "not_found", []error{
		credit.ErrDebtPositionNotFound, credit.ErrCreditPositionNotFound, credit.ErrNullOffer, oracle.ErrNoPrice,
	}},
	{http.StatusServiceUnavailable, "paused", []error{nativecommon.ErrModulePaused}},
	{http.StatusServiceUnavailable, "stale_market_data", []error{
		credit.ErrStaleRate, credit.ErrInvalidPrice, oracle.ErrStalePrice,
	}},
	{http.StatusConflict, "position_state", []error{
		credit.ErrLoanAlreadyRepaid, credit.ErrLoanNotRepaid, credit.ErrLoanNotActive,
		credit.ErrCreditPositionClaimed, credit.ErrCreditNotForSale, credit.ErrNotTransferrable,
		credit.ErrNotLiquidatable, credit.ErrNotSelfLiquidatable, credit.ErrDueDateMismatch,
	}},
	{http.StatusUnprocessableEntity, "rejected", []error{
		credit.ErrNotEnoughCredit, credit.ErrCreditBelowMinimum, credit.ErrCreditBelowMinimumOpen,
		credit.ErrInsufficientCollateral, credit.ErrInsufficientCash, credit.ErrAPRAboveMax, credit.ErrAPRBelowMin,
		credit.ErrDeadlinePassed, credit.ErrDueDateAfterMaxDueDate, credit.ErrCRBelowOpeningLimit,
		credit.ErrUserUnderwater, credit.ErrNotEnoughLiquidity, credit.ErrBorrowATokenCapExceeded,
		credit.ErrCapIncreaseExceedsDebt, credit.ErrNotEnoughCash, credit.ErrCollateralProfitTooLow,
		credit.ErrPartialRepayment, oracle.ErrDeviation,
	}},
}

// classify maps an error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, "internal"
}
