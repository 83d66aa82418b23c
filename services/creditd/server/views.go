package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit"
	"fixedcredit/services/creditd/indexer"
)

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	var cfg credit.Config
	if err := s.market.View(func(e *credit.Engine) error {
		cfg = e.Config()
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":               cfg,
		"maximumSwapFeeAPR":    cfg.MaximumSwapFeeAPR(),
		"swapFeeAPRPercent":    percent(cfg.Fees.SwapFeeAPR),
		"crOpeningPercent":     percent(cfg.Risk.CROpening),
		"crLiquidationPercent": percent(cfg.Risk.CRLiquidation),
	})
}

func (s *Server) getPositionsCount(w http.ResponseWriter, r *http.Request) {
	var debt, creditCount uint64
	err := s.market.View(func(e *credit.Engine) error {
		var err error
		debt, creditCount, err = e.PositionsCount()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"debtPositions": debt, "creditPositions": creditCount})
}

func pathID(r *http.Request) (uint64, error) {
	return requirePositionID("id", chi.URLParam(r, "id"))
}

func (s *Server) getDebtPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view debtPositionView
	err = s.market.View(func(e *credit.Engine) error {
		dp, err := e.DebtPosition(id)
		if err != nil {
			return err
		}
		status, err := e.LoanStatus(id)
		if err != nil {
			return err
		}
		liquidatable, err := e.IsDebtPositionLiquidatable(id)
		if err != nil {
			return err
		}
		view = debtPositionView{
			ID:                        idString(id),
			Borrower:                  dp.Borrower,
			FutureValue:               dp.FutureValue,
			DueDate:                   dp.DueDate,
			LiquidityIndexAtRepayment: dp.LiquidityIndexAtRepayment,
			Status:                    status.String(),
			Liquidatable:              liquidatable,
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getCreditPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view creditPositionView
	err = s.market.View(func(e *credit.Engine) error {
		cp, err := e.CreditPosition(id)
		if err != nil {
			return err
		}
		status, err := e.LoanStatus(id)
		if err != nil {
			return err
		}
		selfLiquidatable, err := e.IsCreditPositionSelfLiquidatable(id)
		if err != nil {
			return err
		}
		view = creditPositionView{
			ID:               idString(id),
			Lender:           cp.Lender,
			Credit:           cp.Credit,
			DebtPositionID:   idString(cp.DebtPositionID),
			ForSale:          cp.ForSale,
			Status:           status.String(),
			SelfLiquidatable: selfLiquidatable,
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getLoanStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var status credit.LoanStatus
	err = s.market.View(func(e *credit.Engine) error {
		var err error
		status, err = e.LoanStatus(id)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": idString(id), "status": status.String()})
}

func pathAddress(r *http.Request) (common.Address, error) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, badRequest("address is required")
	}
	return addr, nil
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view *credit.UserView
	err = s.market.View(func(e *credit.Engine) error {
		var err error
		view, err = e.UserView(account)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(view))
}

func (s *Server) getLoanOfferAPR(w http.ResponseWriter, r *http.Request) {
	s.quote(w, r, (*credit.Engine).LoanOfferAPR)
}

func (s *Server) getBorrowOfferAPR(w http.ResponseWriter, r *http.Request) {
	s.quote(w, r, (*credit.Engine).BorrowOfferAPR)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request, fn func(*credit.Engine, common.Address, uint64) (*uint256.Int, error)) {
	account, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tenor, err := strconv.ParseUint(r.URL.Query().Get("tenor"), 10, 64)
	if err != nil {
		s.writeError(w, r, badRequest("tenor: %v", err))
		return
	}
	var apr *uint256.Int
	err = s.market.View(func(e *credit.Engine) error {
		var err error
		apr, err = fn(e, account, tenor)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteView{Account: account, Tenor: tenor, APR: apr, APRPercent: percent(apr)})
}

func (s *Server) getVariableRate(w http.ResponseWriter, r *http.Request) {
	var rate *credit.VariableRate
	err := s.market.View(func(e *credit.Engine) error {
		var err error
		rate, err = e.VariableRate()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rate":        rate.Rate,
		"ratePercent": percent(rate.Rate),
		"updatedAt":   rate.UpdatedAt,
	})
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	quote, err := s.market.LatestPrice()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]errorBody{"error": {Code: "indexer_disabled", Message: "event archive not configured"}})
		return
	}
	q := r.URL.Query()
	query := indexer.Query{Account: q.Get("account"), Type: q.Get("type")}
	var err error
	if raw := q.Get("debt"); raw != "" {
		id, perr := requirePositionID("debt", raw)
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		query.DebtID = &id
	}
	if raw := q.Get("credit"); raw != "" {
		id, perr := requirePositionID("credit", raw)
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		query.CreditID = &id
	}
	if raw := q.Get("after"); raw != "" {
		if query.After, err = strconv.ParseUint(raw, 10, 64); err != nil {
			s.writeError(w, r, badRequest("after: %v", err))
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if query.Limit, err = strconv.Atoi(raw); err != nil {
			s.writeError(w, r, badRequest("limit: %v", err))
			return
		}
	}
	records, err := s.indexer.Find(query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}
