package credit

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
	"fixedcredit/native/credit/fixedpoint"
)

func TestLoanOfferQuoteInterpolates(t *testing.T) {
	m := newMarket(t)
	err := m.engine.BuyCreditLimit(alice, BuyCreditLimitParams{
		MaxDueDate: uint64(m.now) + curve.YearSeconds,
		Curve: curve.YieldCurve{
			Tenors:                []uint64{30 * day, 365 * day},
			APRs:                  []*big.Int{percentOf(5, 100).ToBig(), percentOf(10, 100).ToBig()},
			MarketRateMultipliers: []*uint256.Int{new(uint256.Int), new(uint256.Int)},
		},
	})
	if err != nil {
		t.Fatalf("loan offer: %v", err)
	}
	apr, err := m.engine.LoanOfferAPR(alice, 180*day)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	expectAmount(t, "apr", apr, uint256.NewInt(72_388_059_701_492_537))

	if _, err := m.engine.LoanOfferAPR(alice, 400*day); !errors.Is(err, ErrInvalidTenor) {
		t.Fatalf("expected tenor outside the curve to fail, got %v", err)
	}
	if _, err := m.engine.LoanOfferAPR(bob, 180*day); !errors.Is(err, ErrNullOffer) {
		t.Fatalf("expected missing offer, got %v", err)
	}
}

func TestLimitOrderValidation(t *testing.T) {
	m := newMarket(t)
	if err := m.engine.BuyCreditLimit(alice, BuyCreditLimitParams{Curve: flatCurve(percentOf(5, 100))}); !errors.Is(err, ErrNullMaxDueDate) {
		t.Fatalf("expected missing max due date, got %v", err)
	}
	if err := m.engine.BuyCreditLimit(alice, BuyCreditLimitParams{
		MaxDueDate: uint64(m.now) + 60,
		Curve:      flatCurve(percentOf(5, 100)),
	}); !errors.Is(err, ErrInvalidDueDate) {
		t.Fatalf("expected max due date inside min tenor to fail, got %v", err)
	}
	unsorted := flatCurve(percentOf(5, 100))
	unsorted.Tenors = []uint64{2 * curve.YearSeconds, day}
	if err := m.engine.SellCreditLimit(bob, SellCreditLimitParams{Curve: unsorted}); !errors.Is(err, ErrInvalidOffer) {
		t.Fatalf("expected invalid curve, got %v", err)
	}
	if !errors.Is(m.engine.SellCreditLimit(bob, SellCreditLimitParams{Curve: unsorted}), curve.ErrTenorsNotStrictlyIncreasing) {
		t.Fatalf("curve failure should stay inspectable")
	}

	m.borrowOffer(bob, percentOf(5, 100))
	if err := m.engine.SellCreditLimit(bob, SellCreditLimitParams{}); err != nil {
		t.Fatalf("withdraw offer: %v", err)
	}
	if _, err := m.engine.BorrowOfferAPR(bob, 30*day); !errors.Is(err, ErrNullOffer) {
		t.Fatalf("expected withdrawn offer, got %v", err)
	}
}

func TestVariableRateAdjustsQuotes(t *testing.T) {
	m := newMarket(t)
	linked := flatCurve(percentOf(5, 100))
	linked.MarketRateMultipliers = []*uint256.Int{fixedpoint.Percent, fixedpoint.Percent}
	if err := m.engine.SellCreditLimit(bob, SellCreditLimitParams{Curve: linked}); err != nil {
		t.Fatalf("borrow offer: %v", err)
	}
	if _, err := m.engine.BorrowOfferAPR(bob, 30*day); !errors.Is(err, ErrStaleRate) {
		t.Fatalf("expected stale rate before the first update, got %v", err)
	}

	if err := m.engine.SetVariableRate(bob, percentOf(3, 100), uint64(m.now)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected keeper check, got %v", err)
	}
	if err := m.engine.SetVariableRate(keeper, percentOf(3, 100), uint64(m.now)+1); !errors.Is(err, ErrInvalidVariable) {
		t.Fatalf("expected future timestamp to fail, got %v", err)
	}
	if err := m.engine.SetVariableRate(keeper, percentOf(3, 100), uint64(m.now)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	apr, err := m.engine.BorrowOfferAPR(bob, 30*day)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	expectAmount(t, "adjusted apr", apr, percentOf(8, 100))

	if err := m.engine.SetVariableRate(keeper, percentOf(3, 100), uint64(m.now)-10); !errors.Is(err, ErrInvalidVariable) {
		t.Fatalf("expected backwards timestamp to fail, got %v", err)
	}

	m.advance(2 * 60 * 60)
	if _, err := m.engine.BorrowOfferAPR(bob, 30*day); !errors.Is(err, ErrStaleRate) {
		t.Fatalf("expected stale rate, got %v", err)
	}
	rate, err := m.engine.SyncVariableRateFromPool(keeper)
	if err != nil {
		t.Fatalf("sync from pool: %v", err)
	}
	stored, err := m.engine.VariableRate()
	if err != nil {
		t.Fatalf("variable rate: %v", err)
	}
	if !stored.Rate.Eq(rate) || stored.UpdatedAt != uint64(m.now) {
		t.Fatalf("stored %+v, synced %s", stored, rate.Dec())
	}
}
