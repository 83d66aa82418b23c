package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/core/state"
	"fixedcredit/native/credit/fixedpoint"
	storagedb "fixedcredit/storage"
)

func TestLedgerMintTransferBurn(t *testing.T) {
	mgr := state.NewManager(storagedb.NewMemDB())
	ledger, err := NewLedger(mgr, " usdc ", 6)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if ledger.Symbol() != "USDC" || ledger.Decimals() != 6 {
		t.Fatalf("unexpected metadata %s/%d", ledger.Symbol(), ledger.Decimals())
	}
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")

	if err := ledger.Mint(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom(alice, bob, uint256.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.TransferFrom(bob, alice, uint256.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Burn(alice, uint256.NewInt(70)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	aliceBal, _ := ledger.BalanceOf(alice)
	bobBal, _ := ledger.BalanceOf(bob)
	supply, _ := ledger.TotalSupply()
	if !aliceBal.IsZero() || bobBal.Uint64() != 30 || supply.Uint64() != 30 {
		t.Fatalf("unexpected balances alice=%s bob=%s supply=%s", aliceBal, bobBal, supply)
	}
}

func TestLedgerRejectsHighDecimals(t *testing.T) {
	mgr := state.NewManager(storagedb.NewMemDB())
	if _, err := NewLedger(mgr, "WEIRD", 24); !errors.Is(err, fixedpoint.ErrDecimalsTooHigh) {
		t.Fatalf("expected ErrDecimalsTooHigh, got %v", err)
	}
}
