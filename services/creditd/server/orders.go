package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"fixedcredit/native/credit"
	"fixedcredit/services/creditd/auth"
)

type orderRoute struct {
	path    string
	name    string
	handler http.HandlerFunc
	decode  opDecoder
}

// opDecoder turns a raw multicall entry into an engine operation.
type opDecoder func(raw json.RawMessage, caller common.Address) (credit.Operation, error)

func ignoreCaller[Req, P any](fn func(Req) (P, error)) func(Req, common.Address) (P, error) {
	return func(req Req, _ common.Address) (P, error) { return fn(req) }
}

func noResult[P any](fn func(*credit.Engine, common.Address, P) error) func(*credit.Engine, common.Address, P) (map[string]bool, error) {
	return func(e *credit.Engine, caller common.Address, p P) (map[string]bool, error) {
		if err := fn(e, caller, p); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
}

func callerFrom(r *http.Request) (common.Address, error) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		return common.Address{}, err
	}
	return claims.Account, nil
}

// order builds a handler that decodes Req, converts it to engine params and
// runs it as the authenticated account.
func order[Req, P, R any](s *Server, parse func(Req, common.Address) (P, error), run func(*credit.Engine, common.Address, P) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req Req
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		params, err := parse(req, caller)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var res R
		err = s.market.Execute(func(e *credit.Engine) error {
			var err error
			res, err = run(e, caller, params)
			return err
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": res})
	}
}

func batchable[Req any, P credit.Operation](parse func(Req, common.Address) (P, error)) opDecoder {
	return func(raw json.RawMessage, caller common.Address) (credit.Operation, error) {
		var req Req
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, badRequest("decode params: %v", err)
		}
		p, err := parse(req, caller)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (s *Server) orderRoutes() []orderRoute {
	return []orderRoute{
		{"/deposit", "deposit",
			order(s, transferRequest.deposit, (*credit.Engine).Deposit),
			batchable(transferRequest.deposit)},
		{"/withdraw", "withdraw",
			order(s, transferRequest.withdraw, (*credit.Engine).Withdraw),
			batchable(transferRequest.withdraw)},
		{"/orders/sell-limit", "sellCreditLimit",
			order(s, ignoreCaller(sellLimitRequest.params), noResult((*credit.Engine).SellCreditLimit)),
			batchable(ignoreCaller(sellLimitRequest.params))},
		{"/orders/buy-limit", "buyCreditLimit",
			order(s, ignoreCaller(buyLimitRequest.params), noResult((*credit.Engine).BuyCreditLimit)),
			batchable(ignoreCaller(buyLimitRequest.params))},
		{"/orders/sell-market", "sellCreditMarket",
			order(s, ignoreCaller(marketOrderRequest.sellMarket), (*credit.Engine).SellCreditMarket),
			batchable(ignoreCaller(marketOrderRequest.sellMarket))},
		{"/orders/buy-market", "buyCreditMarket",
			order(s, ignoreCaller(marketOrderRequest.buyMarket), (*credit.Engine).BuyCreditMarket),
			batchable(ignoreCaller(marketOrderRequest.buyMarket))},
		{"/repay", "repay",
			order(s, ignoreCaller(positionRequest.repay), (*credit.Engine).Repay),
			batchable(ignoreCaller(positionRequest.repay))},
		{"/claim", "claim",
			order(s, ignoreCaller(positionRequest.claim), (*credit.Engine).Claim),
			batchable(ignoreCaller(positionRequest.claim))},
		{"/liquidate", "liquidate",
			order(s, ignoreCaller(liquidateRequest.liquidate), (*credit.Engine).Liquidate),
			batchable(ignoreCaller(liquidateRequest.liquidate))},
		{"/self-liquidate", "selfLiquidate",
			order(s, ignoreCaller(positionRequest.selfLiquidate), (*credit.Engine).SelfLiquidate),
			batchable(ignoreCaller(positionRequest.selfLiquidate))},
		{"/compensate", "compensate",
			order(s, ignoreCaller(compensateRequest.params), (*credit.Engine).Compensate),
			batchable(ignoreCaller(compensateRequest.params))},
		{"/user-configuration", "setUserConfiguration",
			order(s, ignoreCaller(userConfigurationRequest.params), noResult((*credit.Engine).SetUserConfiguration)),
			batchable(ignoreCaller(userConfigurationRequest.params))},
	}
}

func (s *Server) mountOrders(r chi.Router) {
	routes := s.orderRoutes()
	decoders := make(map[string]opDecoder, len(routes))
	for _, route := range routes {
		r.Post(route.path, route.handler)
		decoders[strings.ToLower(route.name)] = route.decode
	}
	r.Post("/multicall", s.multicall(decoders))
}

type multicallRequest struct {
	Calls []struct {
		Op     string          `json:"op"`
		Params json.RawMessage `json:"params"`
	} `json:"calls"`
}

func (s *Server) multicall(decoders map[string]opDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var req multicallRequest
		if err := decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(req.Calls) == 0 {
			s.writeError(w, r, badRequest("calls must not be empty"))
			return
		}
		ops := make([]credit.Operation, 0, len(req.Calls))
		for i, call := range req.Calls {
			dec, ok := decoders[strings.ToLower(strings.TrimSpace(call.Op))]
			if !ok {
				s.writeError(w, r, badRequest("calls[%d]: unknown op %q", i, call.Op))
				return
			}
			op, err := dec(call.Params, caller)
			if err != nil {
				s.writeError(w, r, fmt.Errorf("calls[%d]: %w", i, err))
				return
			}
			ops = append(ops, op)
		}
		var results []interface{}
		err = s.market.Execute(func(e *credit.Engine) error {
			var err error
			results, err = e.Multicall(caller, ops)
			return err
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
	}
}
