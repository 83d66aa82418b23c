// Package pool implements the yield-bearing variable pool that holds the
// borrow asset backing every cash balance of the credit market. Idle
// liquidity accrues the pool's supply rate through a linear liquidity index.
package pool

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNilState              = errors.New("pool: state not configured")
	ErrInvalidAmount         = errors.New("pool: amount must be positive")
	ErrInsufficientLiquidity = errors.New("pool: insufficient liquidity")
	ErrReserveFactor         = errors.New("pool: reserve factor above 100%")
)

type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Asset is the underlying borrow token held in the pool reserve.
type Asset interface {
	Symbol() string
	Decimals() uint8
	BalanceOf(addr common.Address) (*uint256.Int, error)
	TransferFrom(from, to common.Address, amount *uint256.Int) error
}

// Snapshot is the persisted accrual checkpoint.
type Snapshot struct {
	Index      *big.Int
	LastUpdate uint64
	// Borrowed is liquidity lent out by the pool to variable-rate borrowers
	// outside the fixed-term market. It drives utilisation only.
	Borrowed *big.Int
}

// Pool tracks the liquidity index of a single borrow asset.
type Pool struct {
	store            storage
	asset            Asset
	reserve          common.Address
	model            *InterestModel
	reserveFactorBps uint64
	nowFn            func() time.Time
}

// New binds a pool for asset whose supplied liquidity sits on reserve.
func New(store storage, asset Asset, reserve common.Address) *Pool {
	return &Pool{
		store:   store,
		asset:   asset,
		reserve: reserve,
		model:   DefaultInterestModel.Clone(),
		nowFn:   time.Now,
	}
}

// SetInterestModel replaces the utilisation curve.
func (p *Pool) SetInterestModel(model *InterestModel) {
	if p == nil || model == nil {
		return
	}
	p.model = model.Clone()
}

// SetReserveFactor configures the share of borrow interest withheld from
// suppliers, in basis points.
func (p *Pool) SetReserveFactor(bps uint64) error {
	if bps > 10_000 {
		return ErrReserveFactor
	}
	p.reserveFactorBps = bps
	return nil
}

// SetNowFunc overrides the clock. Used by tests and by the credit engine so
// both observe the same time.
func (p *Pool) SetNowFunc(fn func() time.Time) {
	if p == nil || fn == nil {
		return
	}
	p.nowFn = fn
}

// Reserve returns the account holding the pool's idle liquidity.
func (p *Pool) Reserve() common.Address { return p.reserve }

func (p *Pool) key() []byte {
	return []byte(fmt.Sprintf("pool/%s/snapshot", strings.ToUpper(p.asset.Symbol())))
}

func (p *Pool) now() uint64 {
	return uint64(p.nowFn().Unix())
}

func (p *Pool) load() (*Snapshot, error) {
	if p == nil || p.store == nil {
		return nil, ErrNilState
	}
	snap := new(Snapshot)
	ok, err := p.store.KVGet(p.key(), snap)
	if err != nil {
		return nil, err
	}
	if !ok || snap.Index == nil || snap.Index.Sign() == 0 {
		snap.Index = new(big.Int).Set(rayBig)
		snap.LastUpdate = p.now()
	}
	if snap.Borrowed == nil {
		snap.Borrowed = new(big.Int)
	}
	return snap, nil
}

func (p *Pool) supplyRate(snap *Snapshot) (*big.Rat, error) {
	idle, err := p.ReserveLiquidity()
	if err != nil {
		return nil, err
	}
	supplied := new(big.Int).Add(idle.ToBig(), snap.Borrowed)
	return p.model.SupplyAPY(snap.Borrowed, supplied, p.reserveFactorBps), nil
}

func (p *Pool) accrued(snap *Snapshot) (*big.Int, error) {
	now := p.now()
	if now <= snap.LastUpdate {
		return new(big.Int).Set(snap.Index), nil
	}
	rate, err := p.supplyRate(snap)
	if err != nil {
		return nil, err
	}
	return rayMul(snap.Index, linearFactor(rate, now-snap.LastUpdate)), nil
}

// checkpoint folds accrued interest into the stored index so a change in
// utilisation only affects accrual from now on.
func (p *Pool) checkpoint() (*Snapshot, error) {
	snap, err := p.load()
	if err != nil {
		return nil, err
	}
	index, err := p.accrued(snap)
	if err != nil {
		return nil, err
	}
	snap.Index = index
	if now := p.now(); now > snap.LastUpdate {
		snap.LastUpdate = now
	}
	return snap, nil
}

func (p *Pool) save(snap *Snapshot) error {
	return p.store.KVPut(p.key(), snap)
}

// LiquidityIndex returns the current index in ray precision. It starts at 1
// ray and never decreases.
func (p *Pool) LiquidityIndex() (*uint256.Int, error) {
	snap, err := p.load()
	if err != nil {
		return nil, err
	}
	index, err := p.accrued(snap)
	if err != nil {
		return nil, err
	}
	return toUint256(index), nil
}

// ReserveLiquidity returns the idle asset balance available for withdrawal.
func (p *Pool) ReserveLiquidity() (*uint256.Int, error) {
	if p == nil || p.asset == nil {
		return nil, ErrNilState
	}
	return p.asset.BalanceOf(p.reserve)
}

// Supply moves amount of the asset from the supplier into the reserve.
func (p *Pool) Supply(from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	snap, err := p.checkpoint()
	if err != nil {
		return err
	}
	if err := p.asset.TransferFrom(from, p.reserve, amount); err != nil {
		return err
	}
	return p.save(snap)
}

// Withdraw releases amount of the asset from the reserve to the recipient.
func (p *Pool) Withdraw(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	snap, err := p.checkpoint()
	if err != nil {
		return err
	}
	idle, err := p.ReserveLiquidity()
	if err != nil {
		return err
	}
	if idle.Lt(amount) {
		return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientLiquidity, amount.Dec(), idle.Dec())
	}
	if err := p.asset.TransferFrom(p.reserve, to, amount); err != nil {
		return err
	}
	return p.save(snap)
}

// SetBorrowed records the amount lent out to variable-rate borrowers. The
// index is checkpointed first so the new utilisation only applies forward.
func (p *Pool) SetBorrowed(amount *uint256.Int) error {
	snap, err := p.checkpoint()
	if err != nil {
		return err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	snap.Borrowed = amount.ToBig()
	return p.save(snap)
}

// BorrowRate quotes the current variable borrow APR as an 18-decimal value.
func (p *Pool) BorrowRate() (*uint256.Int, error) {
	snap, err := p.load()
	if err != nil {
		return nil, err
	}
	idle, err := p.ReserveLiquidity()
	if err != nil {
		return nil, err
	}
	supplied := new(big.Int).Add(idle.ToBig(), snap.Borrowed)
	rate := p.model.BorrowAPR(snap.Borrowed, supplied)
	return toUint256(ratToScaled(rate, big.NewInt(1_000_000_000_000_000_000))), nil
}
