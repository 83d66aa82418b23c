// Package oracle stores the collateral/borrow price pushed by an authorised
// keeper and serves it to the risk engine with freshness checks applied.
package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

var (
	ErrNoPrice        = errors.New("oracle: no price published")
	ErrInvalidPrice   = errors.New("oracle: price must be positive")
	ErrStalePrice     = errors.New("oracle: stale price")
	ErrDeviation      = errors.New("oracle: price deviation above limit")
	ErrFutureTime     = errors.New("oracle: price timestamp in the future")
	ErrDecimalsTooBig = errors.New("oracle: price decimals above 18")
)

const feedKey = "oracle/price"

type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Quote is a published price of one collateral unit in borrow units, scaled
// by the feed decimals.
type Quote struct {
	Price     *uint256.Int
	UpdatedAt uint64
	Source    string
}

// Config bounds the accepted quotes. A zero MaxAge disables the staleness
// check and a zero MaxDeviationBps disables the deviation guard.
type Config struct {
	Decimals        uint8  `toml:"Decimals" yaml:"decimals"`
	MaxAge          uint64 `toml:"MaxAgeSeconds" yaml:"maxAgeSeconds"`
	MaxDeviationBps uint64 `toml:"MaxDeviationBps" yaml:"maxDeviationBps"`
}

// Feed serves the latest quote.
type Feed struct {
	store storage
	cfg   Config
	nowFn func() time.Time
}

// NewFeed binds a feed to the store.
func NewFeed(store storage, cfg Config) (*Feed, error) {
	if cfg.Decimals > 18 {
		return nil, ErrDecimalsTooBig
	}
	return &Feed{store: store, cfg: cfg, nowFn: time.Now}, nil
}

// SetNowFunc overrides the clock used for freshness checks.
func (f *Feed) SetNowFunc(fn func() time.Time) {
	if f == nil || fn == nil {
		return
	}
	f.nowFn = fn
}

// Decimals returns the precision of published prices.
func (f *Feed) Decimals() uint8 { return f.cfg.Decimals }

// Latest returns the stored quote without validating it.
func (f *Feed) Latest() (*Quote, error) {
	quote := new(Quote)
	ok, err := f.store.KVGet([]byte(feedKey), quote)
	if err != nil {
		return nil, err
	}
	if !ok || quote.Price == nil {
		return nil, ErrNoPrice
	}
	return quote, nil
}

// Push publishes a new quote. Timestamps ahead of the local clock and moves
// beyond the configured deviation are rejected.
func (f *Feed) Push(price *uint256.Int, updatedAt uint64, source string) error {
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	now := uint64(f.nowFn().Unix())
	if updatedAt > now {
		return ErrFutureTime
	}
	if f.cfg.MaxDeviationBps > 0 {
		prev, err := f.Latest()
		switch {
		case errors.Is(err, ErrNoPrice):
		case err != nil:
			return err
		default:
			if exceedsDeviation(prev.Price, price, f.cfg.MaxDeviationBps) {
				return fmt.Errorf("%w: %s -> %s", ErrDeviation, prev.Price.Dec(), price.Dec())
			}
		}
	}
	return f.store.KVPut([]byte(feedKey), &Quote{Price: new(uint256.Int).Set(price), UpdatedAt: updatedAt, Source: source})
}

// GetPrice returns the latest price after applying the freshness checks.
func (f *Feed) GetPrice() (*uint256.Int, error) {
	quote, err := f.Latest()
	if err != nil {
		return nil, err
	}
	if quote.Price.IsZero() {
		return nil, ErrInvalidPrice
	}
	if f.cfg.MaxAge > 0 {
		now := uint64(f.nowFn().Unix())
		if now > quote.UpdatedAt && now-quote.UpdatedAt > f.cfg.MaxAge {
			return nil, fmt.Errorf("%w: age %ds above %ds", ErrStalePrice, now-quote.UpdatedAt, f.cfg.MaxAge)
		}
	}
	return new(uint256.Int).Set(quote.Price), nil
}

func exceedsDeviation(prev, next *uint256.Int, maxBps uint64) bool {
	if prev == nil || prev.IsZero() {
		return false
	}
	diff := new(uint256.Int)
	if next.Gt(prev) {
		diff.Sub(next, prev)
	} else {
		diff.Sub(prev, next)
	}
	// diff/prev > maxBps/10000
	lhs := new(uint256.Int).Mul(diff, uint256.NewInt(10_000))
	rhs := new(uint256.Int).Mul(prev, uint256.NewInt(maxBps))
	return lhs.Gt(rhs)
}
