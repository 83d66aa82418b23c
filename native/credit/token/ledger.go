// Package token implements fungible balance ledgers persisted in the journaled
// state store. The credit engine uses them for the collateral receipt token,
// the debt token and the underlying assets.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrZeroAddress         = errors.New("token: zero address")
	ErrSymbolRequired      = errors.New("token: symbol required")
)

// storage abstracts the subset of state manager functionality required by
// the ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is a plain fungible token. Every transfer is initiated by the
// protocol, so TransferFrom carries no allowance semantics.
type Ledger struct {
	store    storage
	symbol   string
	decimals uint8
}

// NewLedger binds a ledger for symbol to the store. Tokens with more than 18
// decimals are rejected because the risk engine rescales amounts to 18
// decimals.
func NewLedger(store storage, symbol string, decimals uint8) (*Ledger, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrSymbolRequired
	}
	if decimals > fixedpoint.WadDecimals {
		return nil, fixedpoint.ErrDecimalsTooHigh
	}
	return &Ledger{store: store, symbol: symbol, decimals: decimals}, nil
}

// Symbol returns the normalised ticker.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the token precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

func (l *Ledger) balanceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("token/%s/balance/%x", l.symbol, addr.Bytes()))
}

func (l *Ledger) supplyKey() []byte {
	return []byte(fmt.Sprintf("token/%s/supply", l.symbol))
}

func (l *Ledger) read(key []byte) (*uint256.Int, error) {
	value := new(uint256.Int)
	ok, err := l.store.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return value, nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr common.Address) (*uint256.Int, error) {
	return l.read(l.balanceKey(addr))
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return l.read(l.supplyKey())
}

// Mint credits amount to the recipient. Minting zero is a no-op.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	newSupply, err := fixedpoint.CheckedAdd(supply, amount)
	if err != nil {
		return err
	}
	if err := l.store.KVPut(l.balanceKey(to), new(uint256.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.store.KVPut(l.supplyKey(), newSupply)
}

// Burn debits amount from the holder.
func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s burn %s from %s (balance %s)", ErrInsufficientBalance, l.symbol, amount.Dec(), from.Hex(), balance.Dec())
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.store.KVPut(l.balanceKey(from), new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.store.KVPut(l.supplyKey(), new(uint256.Int).Sub(supply, amount))
}

// TransferFrom moves amount between accounts.
func (l *Ledger) TransferFrom(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s transfer %s from %s (balance %s)", ErrInsufficientBalance, l.symbol, amount.Dec(), from.Hex(), fromBalance.Dec())
	}
	if from == to {
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.store.KVPut(l.balanceKey(from), new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.store.KVPut(l.balanceKey(to), new(uint256.Int).Add(toBalance, amount))
}
