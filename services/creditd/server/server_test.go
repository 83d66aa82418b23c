package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fixedcredit/native/credit"
	"fixedcredit/services/creditd/auth"
	"fixedcredit/services/creditd/config"
	"fixedcredit/services/creditd/indexer"
	"fixedcredit/services/creditd/market"
	"fixedcredit/storage"
)

const (
	testNow       = int64(1_700_000_000)
	year          = uint64(365 * 24 * 60 * 60)
	firstCreditID = "9223372036854775808"
)

var (
	alice  = common.HexToAddress("0xa11ce")
	bob    = common.HexToAddress("0xb0b")
	keeper = common.HexToAddress("0xbeef")
	admin  = common.HexToAddress("0xad")
)

type harness struct {
	t        *testing.T
	server   *Server
	verifier *auth.Verifier
	market   *market.Market
	indexer  *indexer.Indexer
}

func newHarness(t *testing.T, limit RateLimit) *harness {
	t.Helper()
	params := credit.DefaultConfig()
	params.Fees.FeeRecipient = common.HexToAddress("0xfee")

	db, err := indexer.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	idx, err := indexer.New(db, nil)
	require.NoError(t, err)

	now := time.Unix(testNow, 0)
	m, err := market.New(market.Options{
		Config: config.MarketConfig{
			ModuleAddress: "0x00000000000000000000000000000000000c0ffe",
			Collateral:    config.TokenConfig{Symbol: "WETH", Decimals: 18},
			Borrow:        config.TokenConfig{Symbol: "USDC", Decimals: 6},
			Pool:          config.PoolConfig{Reserve: "0x0000000000000000000000000000000000009001"},
			Oracle:        config.OracleConfig{Decimals: 18},
			Keepers:       []string{keeper.Hex()},
		},
		Params:  params,
		DB:      storage.NewMemDB(),
		Emitter: idx,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(auth.Options{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "creditd-test",
	})
	require.NoError(t, err)

	srv, err := New(Config{Market: m, Verifier: verifier, Indexer: idx, RateLimit: limit})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return &harness{t: t, server: srv, verifier: verifier, market: m, indexer: idx}
}

func (h *harness) token(account common.Address, role auth.Role) string {
	h.t.Helper()
	tok, err := h.verifier.Issue(account, role, nil, time.Hour, time.Now())
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) ok(method, path, token string, body interface{}, out interface{}) {
	h.t.Helper()
	rec := h.do(method, path, token, body)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func flatCurve(apr string) map[string]interface{} {
	return map[string]interface{}{
		"tenors": []uint64{24 * 60 * 60, 2 * year},
		"aprs":   []string{apr, apr},
	}
}

func TestLoanLifecycle(t *testing.T) {
	h := newHarness(t, RateLimit{})
	adminTok := h.token(admin, auth.RoleAdmin)
	keeperTok := h.token(keeper, auth.RoleKeeper)
	aliceTok := h.token(alice, auth.RoleTrader)
	bobTok := h.token(bob, auth.RoleTrader)

	h.ok(http.MethodPost, "/v1/admin/fund", adminTok, map[string]string{"token": "USDC", "to": alice.Hex(), "amount": "1000000000"}, nil)
	h.ok(http.MethodPost, "/v1/admin/fund", adminTok, map[string]string{"token": "USDC", "to": bob.Hex(), "amount": "11000000"}, nil)
	h.ok(http.MethodPost, "/v1/admin/fund", adminTok, map[string]string{"token": "WETH", "to": bob.Hex(), "amount": "1000000000000000000"}, nil)
	h.ok(http.MethodPost, "/v1/keeper/price", keeperTok, map[string]interface{}{"price": "1000000000000000000000", "updatedAt": testNow}, nil)

	h.ok(http.MethodPost, "/v1/deposit", aliceTok, map[string]string{"token": "USDC", "amount": "1000000000"}, nil)
	h.ok(http.MethodPost, "/v1/orders/buy-limit", aliceTok, map[string]interface{}{
		"maxDueDate": uint64(testNow) + 2*year,
		"curve":      flatCurve("100000000000000000"),
	}, nil)

	var quote quoteView
	h.ok(http.MethodGet, fmt.Sprintf("/v1/offers/%s/loan?tenor=%d", alice.Hex(), year), "", nil, &quote)
	require.Equal(t, "100000000000000000", quote.APR.Dec())
	require.Equal(t, "10", quote.APRPercent)

	h.ok(http.MethodPost, "/v1/deposit", bobTok, map[string]string{"token": "WETH", "amount": "1000000000000000000"}, nil)
	var sold struct {
		Result struct {
			DebtPositionID   uint64
			CreditPositionID uint64
			CashAmountOut    string
			Fees             string
		} `json:"result"`
	}
	h.ok(http.MethodPost, "/v1/orders/sell-market", bobTok, map[string]interface{}{
		"counterparty":  alice.Hex(),
		"amount":        "110000000",
		"tenor":         year,
		"deadline":      testNow,
		"exactAmountIn": true,
	}, &sold)
	require.Equal(t, uint64(0), sold.Result.DebtPositionID)
	require.Equal(t, credit.CreditPositionIDStart, sold.Result.CreditPositionID)
	require.Equal(t, "99500000", sold.Result.CashAmountOut)
	require.Equal(t, "500000", sold.Result.Fees)

	var count map[string]uint64
	h.ok(http.MethodGet, "/v1/positions/count", "", nil, &count)
	require.Equal(t, map[string]uint64{"debtPositions": 1, "creditPositions": 1}, count)

	var cp creditPositionView
	h.ok(http.MethodGet, "/v1/positions/credit/"+firstCreditID, "", nil, &cp)
	require.Equal(t, alice, cp.Lender)
	require.Equal(t, "0", cp.DebtPositionID)
	require.Equal(t, "ACTIVE", cp.Status)
	require.False(t, cp.SelfLiquidatable)

	var user userView
	h.ok(http.MethodGet, "/v1/users/"+bob.Hex(), "", nil, &user)
	require.Equal(t, "110000000", user.DebtAmount.Dec())

	// Top up and repay in one batch.
	var batch struct {
		Results []json.RawMessage `json:"results"`
	}
	h.ok(http.MethodPost, "/v1/multicall", bobTok, map[string]interface{}{
		"calls": []map[string]interface{}{
			{"op": "deposit", "params": map[string]string{"token": "USDC", "amount": "11000000"}},
			{"op": "Repay", "params": map[string]string{"debtPositionId": "0"}},
		},
	}, &batch)
	require.Len(t, batch.Results, 2)

	var status map[string]string
	h.ok(http.MethodGet, "/v1/loans/0/status", "", nil, &status)
	require.Equal(t, "REPAID", status["status"])

	var claimed struct {
		Result struct {
			Amount string
		} `json:"result"`
	}
	h.ok(http.MethodPost, "/v1/claim", aliceTok, map[string]string{"creditPositionId": firstCreditID}, &claimed)
	require.Equal(t, "110000000", claimed.Result.Amount)

	var archived struct {
		Events []indexer.EventRecord `json:"events"`
	}
	h.ok(http.MethodGet, "/v1/events?debt=0", "", nil, &archived)
	require.NotEmpty(t, archived.Events)
	types := make(map[string]bool)
	for _, evt := range archived.Events {
		types[evt.Type] = true
	}
	require.True(t, types[credit.TypeRepay])
}

func TestAuthAndRoles(t *testing.T) {
	h := newHarness(t, RateLimit{})

	rec := h.do(http.MethodPost, "/v1/deposit", "", map[string]string{"token": "USDC", "amount": "1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/v1/deposit", "not-a-token", map[string]string{"token": "USDC", "amount": "1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	traderTok := h.token(alice, auth.RoleTrader)
	rec = h.do(http.MethodPost, "/v1/admin/pause", traderTok, map[string]interface{}{"paused": true})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(http.MethodPost, "/v1/keeper/variable-rate", traderTok, map[string]interface{}{"rate": "1", "updatedAt": testNow})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Admins pass keeper routes, but the engine still checks the keeper set.
	rec = h.do(http.MethodPost, "/v1/keeper/variable-rate", h.token(admin, auth.RoleAdmin), map[string]interface{}{"rate": "1", "updatedAt": testNow})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", errorCode(t, rec))

	h.ok(http.MethodPost, "/v1/keeper/variable-rate", h.token(keeper, auth.RoleKeeper),
		map[string]interface{}{"rate": "50000000000000000", "updatedAt": testNow}, nil)
	var rate map[string]interface{}
	h.ok(http.MethodGet, "/v1/rates/variable", "", nil, &rate)
	require.Equal(t, "5", rate["ratePercent"])
}

func TestErrorClassification(t *testing.T) {
	h := newHarness(t, RateLimit{})
	aliceTok := h.token(alice, auth.RoleTrader)
	adminTok := h.token(admin, auth.RoleAdmin)

	rec := h.do(http.MethodPost, "/v1/deposit", aliceTok, map[string]string{"token": "USDC", "amount": "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", errorCode(t, rec))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(http.MethodPost, "/v1/deposit", aliceTok, map[string]string{"token": "USDC", "amount": "1", "extra": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/v1/positions/debt/7", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", errorCode(t, rec))

	rec = h.do(http.MethodGet, "/v1/price", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/v1/withdraw", aliceTok, map[string]string{"token": "USDC", "amount": "5"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	h.ok(http.MethodPost, "/v1/admin/pause", adminTok, map[string]interface{}{"module": "credit", "paused": true}, nil)
	h.ok(http.MethodPost, "/v1/admin/fund", adminTok, map[string]string{"token": "USDC", "to": alice.Hex(), "amount": "5"}, nil)
	rec = h.do(http.MethodPost, "/v1/deposit", aliceTok, map[string]string{"token": "USDC", "amount": "5"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "paused", errorCode(t, rec))

	rec = h.do(http.MethodPost, "/v1/multicall", aliceTok, map[string]interface{}{
		"calls": []map[string]interface{}{{"op": "mint", "params": map[string]string{}}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConfigThroughAdmin(t *testing.T) {
	h := newHarness(t, RateLimit{})
	adminTok := h.token(admin, auth.RoleAdmin)

	rec := h.do(http.MethodPost, "/v1/admin/config", adminTok, map[string]string{"key": "crLiquidation", "value": "90"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	h.ok(http.MethodPost, "/v1/admin/config", adminTok, map[string]string{"key": "crLiquidation", "value": "1400000000000000000"}, nil)
	var cfg map[string]interface{}
	h.ok(http.MethodGet, "/v1/config", "", nil, &cfg)
	require.Equal(t, "140", cfg["crLiquidationPercent"])
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, RateLimit{RequestsPerMinute: 1, Burst: 1})
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil).Code)
	rec := h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestEventsWithoutIndexer(t *testing.T) {
	h := newHarness(t, RateLimit{})
	h.server.indexer = nil
	rec := h.do(http.MethodGet, "/v1/events", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
