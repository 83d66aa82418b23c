// Package credit implements the fixed-term credit market: the position
// ledger, the risk engine and the order matcher built on top of them.
package credit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/core/events"
	nativecommon "fixedcredit/native/common"
	"fixedcredit/native/credit/fixedpoint"
)

// TokenLedger is a fungible balance ledger driven by the engine.
type TokenLedger interface {
	Symbol() string
	Decimals() uint8
	BalanceOf(addr common.Address) (*uint256.Int, error)
	TotalSupply() (*uint256.Int, error)
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
	TransferFrom(from, to common.Address, amount *uint256.Int) error
}

// VariablePool holds the borrow asset liquidity backing cash balances.
type VariablePool interface {
	Supply(from common.Address, amount *uint256.Int) error
	Withdraw(to common.Address, amount *uint256.Int) error
	LiquidityIndex() (*uint256.Int, error)
	ReserveLiquidity() (*uint256.Int, error)
}

// RateSource quotes the variable borrow rate, 18 decimals.
type RateSource interface {
	BorrowRate() (*uint256.Int, error)
}

// PriceFeed quotes one collateral unit in borrow units.
type PriceFeed interface {
	GetPrice() (*uint256.Int, error)
	Decimals() uint8
}

// Tokens groups the ledgers of a deployment. Collateral and Cash are the
// receipts for deposited underlying; Debt tracks each borrower's outstanding
// face value.
type Tokens struct {
	UnderlyingCollateral TokenLedger
	UnderlyingBorrow     TokenLedger
	Collateral           TokenLedger
	Cash                 TokenLedger
	Debt                 TokenLedger
}

func (t Tokens) validate() error {
	for name, ledger := range map[string]TokenLedger{
		"underlying collateral": t.UnderlyingCollateral,
		"underlying borrow":     t.UnderlyingBorrow,
		"collateral":            t.Collateral,
		"cash":                  t.Cash,
		"debt":                  t.Debt,
	} {
		if ledger == nil {
			return fmt.Errorf("%w: %s token", ErrNilCollaborator, name)
		}
		if ledger.Decimals() > fixedpoint.WadDecimals {
			return fmt.Errorf("%s token %s: %w", name, ledger.Symbol(), fixedpoint.ErrDecimalsTooHigh)
		}
	}
	return nil
}

// execContext carries the per-call facts threaded through validate and
// execute. It is built fresh for every top level call.
type execContext struct {
	caller common.Address
	now    uint64
	batch  bool
}

// Engine executes credit market orders against the journaled state. It is
// not safe for concurrent use; callers serialise access.
type Engine struct {
	state         engineState
	moduleAddress common.Address
	tokens        Tokens
	pool          VariablePool
	oracle        PriceFeed
	cfg           Config
	baseCfg       Config
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	logger        *slog.Logger
	nowFn         func() int64
	keepers       map[common.Address]struct{}
	pending       []events.Event
	running       bool
}

// NewEngine builds an engine holding the module's cash and collateral at
// moduleAddr.
func NewEngine(moduleAddr common.Address, cfg Config) (*Engine, error) {
	if moduleAddr == (common.Address{}) {
		return nil, ErrNullAddress
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		moduleAddress: moduleAddr,
		cfg:           cfg,
		baseCfg:       cfg.Clone(),
		emitter:       events.NoopEmitter{},
		logger:        slog.Default(),
		nowFn:         func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the token ledgers. Tokens above 18 decimals are rejected.
func (e *Engine) SetTokens(tokens Tokens) error {
	if err := tokens.validate(); err != nil {
		return err
	}
	e.tokens = tokens
	return nil
}

// SetPool wires the variable pool adapter.
func (e *Engine) SetPool(pool VariablePool) { e.pool = pool }

// SetOracle wires the price feed.
func (e *Engine) SetOracle(feed PriceFeed) { e.oracle = feed }

// SetEmitter configures the event sink. Nil installs a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLogger configures structured logging. Nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("module", moduleName)
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetKeepers replaces the set of accounts allowed to push reference rates
// and run liquidations with replacement.
func (e *Engine) SetKeepers(keepers ...common.Address) {
	e.keepers = make(map[common.Address]struct{}, len(keepers))
	for _, k := range keepers {
		if k != (common.Address{}) {
			e.keepers[k] = struct{}{}
		}
	}
}

// IsKeeper reports whether addr holds the keeper role.
func (e *Engine) IsKeeper(addr common.Address) bool {
	_, ok := e.keepers[addr]
	return ok
}

func (e *Engine) requireKeeper(caller common.Address) error {
	if !e.IsKeeper(caller) {
		return fmt.Errorf("%w: %s is not a keeper", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// ModuleAddress returns the account holding protocol cash and collateral.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

// Config returns a copy of the active parameters.
func (e *Engine) Config() Config { return e.cfg.Clone() }

// UpdateConfig applies a single parameter change. The candidate record is
// validated as a whole, written to state and only then swapped in, so it
// commits or reverts with the surrounding state transaction. A caller that
// reverts state afterwards must call ReloadConfig to drop the cached copy.
func (e *Engine) UpdateConfig(key, value string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return ErrNilState
	}
	candidate := e.cfg.Clone()
	if err := candidate.applyKey(key, value); err != nil {
		return err
	}
	if err := candidate.Validate(); err != nil {
		return err
	}
	if err := e.state.KVPut(configKey, &candidate); err != nil {
		return err
	}
	e.cfg = candidate
	e.logger.Info("credit config updated", "key", key, "value", value)
	e.emitter.Emit(newEvent(TypeConfigUpdated, map[string]string{"key": key, "value": value}))
	return nil
}

// ReloadConfig syncs the active parameters with state. Without a persisted
// record the construction parameters apply.
func (e *Engine) ReloadConfig() error {
	if e.state == nil {
		return ErrNilState
	}
	stored := new(Config)
	ok, err := e.state.KVGet(configKey, stored)
	if err != nil {
		return err
	}
	if !ok {
		e.cfg = e.baseCfg.Clone()
		return nil
	}
	if err := stored.Validate(); err != nil {
		return fmt.Errorf("credit: persisted config: %w", err)
	}
	e.cfg = *stored
	return nil
}

func (e *Engine) now() uint64 {
	now := e.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.tokens.Debt == nil || e.pool == nil || e.oracle == nil {
		return ErrNilCollaborator
	}
	return nil
}

// run executes fn as one indivisible unit. Any failure reverts every state
// write made since the snapshot and drops the buffered events.
func (e *Engine) run(op string, caller common.Address, fn func(ctx execContext) error) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.running {
		return ErrMulticallNested
	}
	e.running = true
	defer func() { e.running = false }()

	ctx := execContext{caller: caller, now: e.now()}
	snap := e.state.Snapshot()
	e.pending = e.pending[:0]
	if err := fn(ctx); err != nil {
		e.state.RevertToSnapshot(snap)
		e.pending = e.pending[:0]
		e.logger.Debug("credit order rejected", "op", op, "caller", caller.Hex(), "error", err)
		return err
	}
	for _, evt := range e.pending {
		e.emitter.Emit(evt)
	}
	e.pending = e.pending[:0]
	e.logger.Debug("credit order executed", "op", op, "caller", caller.Hex())
	return nil
}

func (e *Engine) emit(evt events.Event) {
	e.pending = append(e.pending, evt)
}
