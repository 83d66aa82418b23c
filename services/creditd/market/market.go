// Package market assembles the credit engine with its ledgers, pool and
// price feed over one journaled state store, and serialises every writer.
package market

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/core/events"
	"fixedcredit/core/state"
	nativecommon "fixedcredit/native/common"
	"fixedcredit/native/credit"
	"fixedcredit/native/credit/oracle"
	"fixedcredit/native/credit/pool"
	"fixedcredit/native/credit/token"
	"fixedcredit/services/creditd/config"
	"fixedcredit/storage"
)

var ErrUnknownAsset = errors.New("market: unknown asset")

// Options wires a Market.
type Options struct {
	Config  config.MarketConfig
	Params  credit.Config
	DB      storage.Database
	Emitter events.Emitter
	Logger  *slog.Logger
	Now     func() time.Time
}

// Market owns the state manager and the engine. Calls are serialised: each
// Execute runs against a snapshot, commits on success and only then releases
// the events it produced.
type Market struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	engine  *credit.Engine
	pending *pendingEmitter
	sink    events.Emitter
	logger  *slog.Logger

	collateral *token.Ledger
	borrow     *token.Ledger
	pool       *pool.Pool
	feed       *oracle.Feed
	pauses     *nativecommon.Pauses
	module     common.Address
}

type pendingEmitter struct {
	events []events.Event
}

func (p *pendingEmitter) Emit(evt events.Event) { p.events = append(p.events, evt) }

// New builds the market. The database is owned by the caller until Close.
func New(opts Options) (*Market, error) {
	if opts.DB == nil {
		return nil, errors.New("market: database required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	cfg := opts.Config
	m := &Market{
		db:      opts.DB,
		state:   state.NewManager(opts.DB),
		pending: &pendingEmitter{},
		sink:    opts.Emitter,
		logger:  opts.Logger.With("component", "market"),
		pauses:  nativecommon.NewPauses(),
		module:  common.HexToAddress(cfg.ModuleAddress),
	}

	var err error
	if m.collateral, err = token.NewLedger(m.state, cfg.Collateral.Symbol, cfg.Collateral.Decimals); err != nil {
		return nil, fmt.Errorf("market: collateral ledger: %w", err)
	}
	if m.borrow, err = token.NewLedger(m.state, cfg.Borrow.Symbol, cfg.Borrow.Decimals); err != nil {
		return nil, fmt.Errorf("market: borrow ledger: %w", err)
	}
	collateralToken, err := token.NewLedger(m.state, "sz"+cfg.Collateral.Symbol, cfg.Collateral.Decimals)
	if err != nil {
		return nil, fmt.Errorf("market: collateral token: %w", err)
	}
	debtToken, err := token.NewLedger(m.state, "szDebt"+cfg.Borrow.Symbol, cfg.Borrow.Decimals)
	if err != nil {
		return nil, fmt.Errorf("market: debt token: %w", err)
	}

	m.pool = pool.New(m.state, m.borrow, common.HexToAddress(cfg.Pool.Reserve))
	m.pool.SetNowFunc(opts.Now)
	if cfg.Pool.Slope1 > 0 || cfg.Pool.BaseRate > 0 {
		m.pool.SetInterestModel(pool.NewInterestModel(cfg.Pool.BaseRate, cfg.Pool.Slope1, cfg.Pool.Slope2, cfg.Pool.Kink))
	}
	if err := m.pool.SetReserveFactor(cfg.Pool.ReserveFactorBps); err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	cash := pool.NewCashToken(m.state, "sza"+cfg.Borrow.Symbol, cfg.Borrow.Decimals, m.pool)

	m.feed, err = oracle.NewFeed(m.state, oracle.Config{
		Decimals:        cfg.Oracle.Decimals,
		MaxAge:          cfg.Oracle.MaxAgeSeconds,
		MaxDeviationBps: cfg.Oracle.MaxDeviationBps,
	})
	if err != nil {
		return nil, fmt.Errorf("market: oracle: %w", err)
	}
	m.feed.SetNowFunc(opts.Now)

	m.engine, err = credit.NewEngine(m.module, opts.Params)
	if err != nil {
		return nil, err
	}
	m.engine.SetState(m.state)
	if err := m.engine.SetTokens(credit.Tokens{
		UnderlyingCollateral: m.collateral,
		UnderlyingBorrow:     m.borrow,
		Collateral:           collateralToken,
		Cash:                 cash,
		Debt:                 debtToken,
	}); err != nil {
		return nil, err
	}
	m.engine.SetPool(m.pool)
	m.engine.SetOracle(m.feed)
	m.engine.SetPauses(m.pauses)
	m.engine.SetEmitter(m.pending)
	m.engine.SetLogger(opts.Logger)
	now := opts.Now
	m.engine.SetNowFunc(func() int64 { return now().Unix() })
	m.engine.SetKeepers(cfg.KeeperAddresses()...)
	if err := m.engine.ReloadConfig(); err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	return m, nil
}

// Execute runs fn as a single writer. State written by fn is committed only
// when fn succeeds; events are forwarded after the commit.
func (m *Market) Execute(fn func(*credit.Engine) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.state.Snapshot()
	m.pending.events = m.pending.events[:0]
	if err := fn(m.engine); err != nil {
		m.rollback(snap)
		return err
	}
	if err := m.state.Commit(); err != nil {
		m.rollback(snap)
		return err
	}
	for _, evt := range m.pending.events {
		m.sink.Emit(evt)
	}
	m.pending.events = m.pending.events[:0]
	return nil
}

func (m *Market) rollback(snap int) {
	m.state.RevertToSnapshot(snap)
	m.pending.events = m.pending.events[:0]
	if err := m.engine.ReloadConfig(); err != nil {
		m.logger.Error("reload credit config", "err", err)
	}
}

// View runs fn under the writer lock and discards any incidental writes.
func (m *Market) View(fn func(*credit.Engine) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.state.Snapshot()
	defer m.state.RevertToSnapshot(snap)
	return fn(m.engine)
}

// PushPrice publishes a collateral price.
func (m *Market) PushPrice(price *uint256.Int, updatedAt uint64, source string) error {
	return m.Execute(func(*credit.Engine) error {
		return m.feed.Push(price, updatedAt, source)
	})
}

// LatestPrice returns the last published quote without freshness checks.
func (m *Market) LatestPrice() (*oracle.Quote, error) {
	var quote *oracle.Quote
	err := m.View(func(*credit.Engine) error {
		var err error
		quote, err = m.feed.Latest()
		return err
	})
	return quote, err
}

// Fund mints underlying tokens to an account. Operators use it on test
// deployments where no bridge feeds the ledgers.
func (m *Market) Fund(symbol string, to common.Address, amount *uint256.Int) error {
	ledger, err := m.underlying(symbol)
	if err != nil {
		return err
	}
	return m.Execute(func(*credit.Engine) error {
		return ledger.Mint(to, amount)
	})
}

// UnderlyingBalance returns an account's underlying token balance.
func (m *Market) UnderlyingBalance(symbol string, account common.Address) (*uint256.Int, error) {
	ledger, err := m.underlying(symbol)
	if err != nil {
		return nil, err
	}
	var out *uint256.Int
	err = m.View(func(*credit.Engine) error {
		var err error
		out, err = ledger.BalanceOf(account)
		return err
	})
	return out, err
}

// SetPoolBorrowed records variable-rate borrowing outside the market, which
// drives the pool's utilisation and thus its borrow rate.
func (m *Market) SetPoolBorrowed(amount *uint256.Int) error {
	return m.Execute(func(*credit.Engine) error {
		return m.pool.SetBorrowed(amount)
	})
}

func (m *Market) underlying(symbol string) (*token.Ledger, error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case m.collateral.Symbol():
		return m.collateral, nil
	case m.borrow.Symbol():
		return m.borrow, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAsset, symbol)
}

// Pauses exposes the operator pause switches.
func (m *Market) Pauses() *nativecommon.Pauses { return m.pauses }

// ModuleAddress returns the account holding pooled balances.
func (m *Market) ModuleAddress() common.Address { return m.module }

// Close flushes pending state and closes the database.
func (m *Market) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.state.Commit()
	m.db.Close()
	return err
}
