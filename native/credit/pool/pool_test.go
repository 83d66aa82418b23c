package pool

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/core/state"
	"fixedcredit/native/credit/fixedpoint"
	"fixedcredit/native/credit/token"
	storagedb "fixedcredit/storage"
)

type fixture struct {
	pool  *Pool
	cash  *CashToken
	asset *token.Ledger
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storagedb.NewMemDB())
	asset, err := token.NewLedger(mgr, "USDC", 6)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	f := &fixture{asset: asset, now: time.Unix(1_700_000_000, 0)}
	f.pool = New(mgr, asset, common.HexToAddress("0xfee1"))
	f.pool.SetNowFunc(func() time.Time { return f.now })
	f.cash = NewCashToken(mgr, "cashUSDC", 6, f.pool)
	return f
}

// exactModel avoids the binary rounding of float inputs.
func exactModel(base, slope1, slope2, kink *big.Rat) *InterestModel {
	return &InterestModel{BaseRate: base, Slope1: slope1, Slope2: slope2, Kink: kink}
}

func flatModel() *InterestModel {
	return exactModel(big.NewRat(1, 10), new(big.Rat), new(big.Rat), new(big.Rat))
}

func TestInterestModelKink(t *testing.T) {
	model := exactModel(big.NewRat(2, 100), big.NewRat(1, 10), big.NewRat(1, 1), big.NewRat(8, 10))
	below := model.BorrowAPR(big.NewInt(50), big.NewInt(100))
	if below.Cmp(big.NewRat(7, 100)) != 0 {
		t.Fatalf("expected 7%%, got %s", below.FloatString(4))
	}
	above := model.BorrowAPR(big.NewInt(90), big.NewInt(100))
	if above.Cmp(big.NewRat(20, 100)) != 0 {
		t.Fatalf("expected 20%%, got %s", above.FloatString(4))
	}
	if model.SupplyAPY(big.NewInt(0), big.NewInt(100), 0).Sign() != 0 {
		t.Fatalf("expected zero supply rate without borrowing")
	}
}

func TestLiquidityIndexAccruesLinearly(t *testing.T) {
	f := newFixture(t)
	supplier := common.HexToAddress("0x01")
	if err := f.asset.Mint(supplier, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.pool.Supply(supplier, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	index, err := f.pool.LiquidityIndex()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if !index.Eq(fixedpoint.Ray) {
		t.Fatalf("expected initial ray index, got %s", index.Dec())
	}

	f.pool.SetInterestModel(flatModel())
	if err := f.pool.SetBorrowed(uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("set borrowed: %v", err)
	}
	f.now = f.now.Add(365 * 24 * time.Hour)
	index, err = f.pool.LiquidityIndex()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	// 10% borrow APR at 50% utilisation accrues 5% to suppliers.
	expected := new(uint256.Int).Div(new(uint256.Int).Mul(fixedpoint.Ray, uint256.NewInt(105)), uint256.NewInt(100))
	if !index.Eq(expected) {
		t.Fatalf("expected %s, got %s", expected.Dec(), index.Dec())
	}

	rate, err := f.pool.BorrowRate()
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	if !rate.Eq(new(uint256.Int).Div(fixedpoint.Percent, uint256.NewInt(10))) {
		t.Fatalf("unexpected borrow rate %s", rate.Dec())
	}
}

func TestWithdrawRequiresLiquidity(t *testing.T) {
	f := newFixture(t)
	supplier := common.HexToAddress("0x01")
	_ = f.asset.Mint(supplier, uint256.NewInt(100))
	if err := f.pool.Supply(supplier, uint256.NewInt(100)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := f.pool.Withdraw(supplier, uint256.NewInt(101)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if err := f.pool.Withdraw(supplier, uint256.NewInt(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := f.pool.Supply(supplier, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestCashTokenScalesWithIndex(t *testing.T) {
	f := newFixture(t)
	alice := common.HexToAddress("0x0a")
	bob := common.HexToAddress("0x0b")
	supplier := common.HexToAddress("0x01")
	_ = f.asset.Mint(supplier, uint256.NewInt(1_000_000))
	if err := f.pool.Supply(supplier, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("supply: %v", err)
	}

	if err := f.cash.Mint(alice, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.pool.SetInterestModel(flatModel())
	if err := f.pool.SetBorrowed(uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("set borrowed: %v", err)
	}
	f.now = f.now.Add(365 * 24 * time.Hour)

	bal, err := f.cash.BalanceOf(alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Uint64() != 1_050 {
		t.Fatalf("expected 1050 after accrual, got %s", bal.Dec())
	}
	if err := f.cash.TransferFrom(alice, bob, bal); err != nil {
		t.Fatalf("transfer full balance: %v", err)
	}
	if err := f.cash.Burn(alice, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected insufficient cash, got %v", err)
	}
	bobBal, _ := f.cash.BalanceOf(bob)
	if bobBal.Uint64() != 1_050 {
		t.Fatalf("expected bob to hold 1050, got %s", bobBal.Dec())
	}
	supply, _ := f.cash.TotalSupply()
	if supply.Uint64() != 1_050 {
		t.Fatalf("unexpected supply %s", supply.Dec())
	}
}
