package credit

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DepositParams moves underlying into the market. Token names the underlying
// collateral or borrow asset by symbol.
type DepositParams struct {
	Token  string
	Amount *uint256.Int
	To     common.Address
}

// DepositResult reports the receipt minted for the deposit.
type DepositResult struct {
	Token  string
	Amount *uint256.Int
	To     common.Address
}

// Deposit credits To with collateral or cash receipts for Amount of
// underlying pulled from caller.
func (e *Engine) Deposit(caller common.Address, params DepositParams) (*DepositResult, error) {
	return execute[*DepositResult](e, "deposit", caller, params)
}

// underlyingKind resolves a symbol against the two underlying assets.
func (e *Engine) underlyingKind(symbol string) (collateral bool, err error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case e.tokens.UnderlyingCollateral.Symbol():
		return true, nil
	case e.tokens.UnderlyingBorrow.Symbol():
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidToken, symbol)
	}
}

func (p DepositParams) validate(e *Engine) (bool, error) {
	isCollateral, err := e.underlyingKind(p.Token)
	if err != nil {
		return false, err
	}
	if err := requirePositive(p.Amount); err != nil {
		return false, err
	}
	if p.To == (common.Address{}) {
		return false, ErrNullAddress
	}
	return isCollateral, nil
}

func (p DepositParams) exec(e *Engine, ctx execContext) (interface{}, error) {
	isCollateral, err := p.validate(e)
	if err != nil {
		return nil, err
	}
	var symbol string
	if isCollateral {
		symbol = e.tokens.UnderlyingCollateral.Symbol()
		if err := e.tokens.UnderlyingCollateral.TransferFrom(ctx.caller, e.moduleAddress, p.Amount); err != nil {
			return nil, err
		}
		if err := e.tokens.Collateral.Mint(p.To, p.Amount); err != nil {
			return nil, err
		}
	} else {
		symbol = e.tokens.UnderlyingBorrow.Symbol()
		if err := e.pool.Supply(ctx.caller, p.Amount); err != nil {
			return nil, err
		}
		if err := e.tokens.Cash.Mint(p.To, p.Amount); err != nil {
			return nil, err
		}
		if !ctx.batch {
			if err := e.validateBorrowATokenCap(); err != nil {
				return nil, err
			}
		}
	}
	e.emit(newEvent(TypeDeposit, map[string]string{
		"caller": addrAttr(ctx.caller),
		"token":  symbol,
		"amount": amountAttr(p.Amount),
		"to":     addrAttr(p.To),
	}))
	return &DepositResult{Token: symbol, Amount: cloneAmount(p.Amount), To: p.To}, nil
}
