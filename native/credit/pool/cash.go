package pool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/fixedpoint"
)

var ErrInsufficientCash = errors.New("pool: insufficient cash balance")

// indexSource reports the current liquidity index in ray precision.
type indexSource interface {
	LiquidityIndex() (*uint256.Int, error)
}

// CashToken is the non-transferable receipt for liquidity supplied to the
// pool. Balances are stored scaled by the liquidity index so they grow with
// the pool's yield; amounts crossing the API are always unscaled.
type CashToken struct {
	store    storage
	symbol   string
	decimals uint8
	index    indexSource
}

// NewCashToken binds a scaled receipt token to the pool index.
func NewCashToken(store storage, symbol string, decimals uint8, index indexSource) *CashToken {
	return &CashToken{
		store:    store,
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		decimals: decimals,
		index:    index,
	}
}

func (c *CashToken) Symbol() string  { return c.symbol }
func (c *CashToken) Decimals() uint8 { return c.decimals }

func (c *CashToken) balanceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("cash/%s/scaled/%x", c.symbol, addr.Bytes()))
}

func (c *CashToken) supplyKey() []byte {
	return []byte(fmt.Sprintf("cash/%s/scaled-supply", c.symbol))
}

func (c *CashToken) read(key []byte) (*uint256.Int, error) {
	v := new(uint256.Int)
	ok, err := c.store.KVGet(key, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return v, nil
}

// ScaledBalanceOf returns the raw stored balance.
func (c *CashToken) ScaledBalanceOf(addr common.Address) (*uint256.Int, error) {
	return c.read(c.balanceKey(addr))
}

// BalanceOf returns the unscaled balance, rounded down.
func (c *CashToken) BalanceOf(addr common.Address) (*uint256.Int, error) {
	scaled, err := c.ScaledBalanceOf(addr)
	if err != nil {
		return nil, err
	}
	return c.unscale(scaled)
}

// TotalSupply returns the unscaled supply, rounded down.
func (c *CashToken) TotalSupply() (*uint256.Int, error) {
	scaled, err := c.read(c.supplyKey())
	if err != nil {
		return nil, err
	}
	return c.unscale(scaled)
}

func (c *CashToken) unscale(scaled *uint256.Int) (*uint256.Int, error) {
	index, err := c.index.LiquidityIndex()
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDivDown(scaled, index, fixedpoint.Ray)
}

// scaledDebit converts an unscaled debit into scaled units, rounding up. A
// holder whose unscaled balance covers amount is never blocked by rounding:
// the debit is capped at the stored balance.
func (c *CashToken) scaledDebit(from common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	index, err := c.index.LiquidityIndex()
	if err != nil {
		return nil, nil, err
	}
	held, err := c.ScaledBalanceOf(from)
	if err != nil {
		return nil, nil, err
	}
	balance, err := fixedpoint.MulDivDown(held, index, fixedpoint.Ray)
	if err != nil {
		return nil, nil, err
	}
	if balance.Lt(amount) {
		return nil, nil, fmt.Errorf("%w: %s debit %s from %s (balance %s)", ErrInsufficientCash, c.symbol, amount.Dec(), from.Hex(), balance.Dec())
	}
	scaled, err := fixedpoint.MulDivUp(amount, fixedpoint.Ray, index)
	if err != nil {
		return nil, nil, err
	}
	if scaled.Gt(held) {
		scaled = held
	}
	return scaled, held, nil
}

// Mint credits amount, rounding the scaled credit down.
func (c *CashToken) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	index, err := c.index.LiquidityIndex()
	if err != nil {
		return err
	}
	scaled, err := fixedpoint.MulDivDown(amount, fixedpoint.Ray, index)
	if err != nil {
		return err
	}
	held, err := c.ScaledBalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := c.read(c.supplyKey())
	if err != nil {
		return err
	}
	newSupply, err := fixedpoint.CheckedAdd(supply, scaled)
	if err != nil {
		return err
	}
	if err := c.store.KVPut(c.balanceKey(to), new(uint256.Int).Add(held, scaled)); err != nil {
		return err
	}
	return c.store.KVPut(c.supplyKey(), newSupply)
}

// Burn debits amount from the holder.
func (c *CashToken) Burn(from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	scaled, held, err := c.scaledDebit(from, amount)
	if err != nil {
		return err
	}
	supply, err := c.read(c.supplyKey())
	if err != nil {
		return err
	}
	if err := c.store.KVPut(c.balanceKey(from), new(uint256.Int).Sub(held, scaled)); err != nil {
		return err
	}
	rest, err := fixedpoint.CheckedSub(supply, scaled)
	if err != nil {
		rest = new(uint256.Int)
	}
	return c.store.KVPut(c.supplyKey(), rest)
}

// TransferFrom moves amount between holders. Transfers are protocol
// initiated only.
func (c *CashToken) TransferFrom(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	scaled, held, err := c.scaledDebit(from, amount)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	toHeld, err := c.ScaledBalanceOf(to)
	if err != nil {
		return err
	}
	if err := c.store.KVPut(c.balanceKey(from), new(uint256.Int).Sub(held, scaled)); err != nil {
		return err
	}
	return c.store.KVPut(c.balanceKey(to), new(uint256.Int).Add(toHeld, scaled))
}
