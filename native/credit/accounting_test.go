package credit

import (
	"testing"

	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
)

func accountingEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Fees.FeeRecipient = feeRecipient
	e, err := NewEngine(moduleAddr, cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func within(got, want *uint256.Int, tolerance uint64) bool {
	diff := new(uint256.Int)
	if got.Gt(want) {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	return !diff.Gt(uint256.NewInt(tolerance))
}

func TestBuyThenSellRoundTrip(t *testing.T) {
	e := accountingEngine(t)
	rate := percentOf(10, 100)
	tenor := curve.YearSeconds
	cash := usdc(100)

	creditOut, buyFees, err := e.getCreditAmountOut(cash, cash, usdc(110), rate, tenor)
	if err != nil {
		t.Fatalf("credit out: %v", err)
	}
	expectAmount(t, "credit", creditOut, usdc(110))
	expectAmount(t, "buy fees", buyFees, uint256.NewInt(500_000))

	cashIn, _, err := e.getCashAmountIn(creditOut, creditOut, rate, tenor)
	if err != nil {
		t.Fatalf("cash in: %v", err)
	}
	if !within(cashIn, cash, 1) {
		t.Fatalf("round trip drifted: %s vs %s", cashIn.Dec(), cash.Dec())
	}
}

func TestSellExactInAndOutAgree(t *testing.T) {
	e := accountingEngine(t)
	rate := percentOf(10, 100)
	tenor := curve.YearSeconds
	maxCredit := usdc(110)

	cashOut, fees, err := e.getCashAmountOut(usdc(50), maxCredit, rate, tenor)
	if err != nil {
		t.Fatalf("cash out: %v", err)
	}
	// 50/1.1 less 0.5% and the 5 USDC fragmentation fee.
	expectAmount(t, "cash out", cashOut, uint256.NewInt(40_227_272))
	expectAmount(t, "fees", fees, uint256.NewInt(5_227_273))

	maxCashOut := uint256.NewInt(99_500_000)
	creditIn, _, err := e.getCreditAmountIn(cashOut, maxCashOut, maxCredit, rate, tenor)
	if err != nil {
		t.Fatalf("credit in: %v", err)
	}
	if !within(creditIn, usdc(50), 1) {
		t.Fatalf("exact-out credit %s, want ~%s", creditIn.Dec(), usdc(50).Dec())
	}
}

func TestFeesRoundUp(t *testing.T) {
	e := accountingEngine(t)
	fee, err := e.swapFee(uint256.NewInt(1), 30*day)
	if err != nil {
		t.Fatalf("swap fee: %v", err)
	}
	expectAmount(t, "dust fee", fee, uint256.NewInt(1))
	if _, _, err := e.getCashAmountOut(usdc(120), usdc(110), percentOf(10, 100), curve.YearSeconds); err == nil {
		t.Fatalf("selling more than held should fail")
	}
}
