package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit"
)

type variableRateRequest struct {
	Rate      string `json:"rate"`
	UpdatedAt uint64 `json:"updatedAt"`
}

func (s *Server) setVariableRate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req variableRateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rate, err := requireAmount("rate", req.Rate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.market.Execute(func(e *credit.Engine) error {
		return e.SetVariableRate(caller, rate, req.UpdatedAt)
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rate": rate.Dec(), "ratePercent": percent(rate)})
}

func (s *Server) syncVariableRate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var rate *uint256.Int
	if err := s.market.Execute(func(e *credit.Engine) error {
		var err error
		rate, err = e.SyncVariableRateFromPool(caller)
		return err
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rate": rate.Dec(), "ratePercent": percent(rate)})
}

func (s *Server) liquidateWithReplacement(w http.ResponseWriter, r *http.Request) {
	order(s, ignoreCaller(liquidateRequest.withReplacement), (*credit.Engine).LiquidateWithReplacement)(w, r)
}

type priceRequest struct {
	Price     string `json:"price"`
	UpdatedAt uint64 `json:"updatedAt"`
	Source    string `json:"source"`
}

func (s *Server) pushPrice(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req priceRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := requireAmount("price", req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	source := req.Source
	if source == "" {
		source = caller.Hex()
	}
	if err := s.market.PushPrice(price, req.UpdatedAt, source); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"price": price, "updatedAt": req.UpdatedAt})
}

type configRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var cfg credit.Config
	if err := s.market.Execute(func(e *credit.Engine) error {
		if err := e.UpdateConfig(req.Key, req.Value); err != nil {
			return err
		}
		cfg = e.Config()
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"config": cfg})
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) setPause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Module == "" {
		req.Module = "credit"
	}
	s.market.Pauses().Set(req.Module, req.Paused)
	s.logger.Info("module pause toggled", "module", req.Module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]interface{}{"paused": s.market.Pauses().List()})
}

func (s *Server) fund(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := requireAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if to == (common.Address{}) {
		s.writeError(w, r, badRequest("to is required"))
		return
	}
	if err := s.market.Fund(req.Token, to, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": req.Token, "to": to, "amount": amount})
}

type poolBorrowedRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) setPoolBorrowed(w http.ResponseWriter, r *http.Request) {
	var req poolBorrowedRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := requireAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.market.SetPoolBorrowed(amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"borrowed": amount})
}
