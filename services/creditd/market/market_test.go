package market

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"fixedcredit/core/events"
	nativecommon "fixedcredit/native/common"
	"fixedcredit/native/credit"
	"fixedcredit/services/creditd/config"
	"fixedcredit/storage"
)

type captured struct{ kinds []string }

func (c *captured) Emit(evt events.Event) { c.kinds = append(c.kinds, evt.EventType()) }

var trader = common.HexToAddress("0xa11ce")

func newTestMarket(t *testing.T) (*Market, *captured) {
	t.Helper()
	return openTestMarket(t, storage.NewMemDB())
}

func openTestMarket(t *testing.T, db storage.Database) (*Market, *captured) {
	t.Helper()
	params := credit.DefaultConfig()
	params.Fees.FeeRecipient = common.HexToAddress("0xfee")
	sink := &captured{}
	now := time.Unix(1_700_000_000, 0)
	m, err := New(Options{
		Config: config.MarketConfig{
			ModuleAddress: "0x00000000000000000000000000000000000c0ffe",
			Collateral:    config.TokenConfig{Symbol: "WETH", Decimals: 18},
			Borrow:        config.TokenConfig{Symbol: "USDC", Decimals: 6},
			Pool:          config.PoolConfig{Reserve: "0x0000000000000000000000000000000000009001"},
			Oracle:        config.OracleConfig{Decimals: 18},
		},
		Params:  params,
		DB:      db,
		Emitter: sink,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	return m, sink
}

func TestExecuteCommitsAndForwardsEvents(t *testing.T) {
	m, sink := newTestMarket(t)
	amount := uint256.NewInt(5_000_000)
	require.NoError(t, m.Fund("usdc", trader, amount))

	err := m.Execute(func(e *credit.Engine) error {
		_, err := e.Deposit(trader, credit.DepositParams{Token: "USDC", Amount: amount, To: trader})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{credit.TypeDeposit}, sink.kinds)

	var cash *uint256.Int
	require.NoError(t, m.View(func(e *credit.Engine) error {
		view, err := e.UserView(trader)
		if err != nil {
			return err
		}
		cash = view.CashAmount
		return nil
	}))
	require.Equal(t, amount.Uint64(), cash.Uint64())
}

func TestExecuteRevertsOnError(t *testing.T) {
	m, sink := newTestMarket(t)
	require.NoError(t, m.Fund("WETH", trader, uint256.NewInt(10)))
	boom := errors.New("boom")
	err := m.Execute(func(e *credit.Engine) error {
		if _, err := e.Deposit(trader, credit.DepositParams{Token: "WETH", Amount: uint256.NewInt(10), To: trader}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, sink.kinds)

	balance, err := m.UnderlyingBalance("weth", trader)
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance.Uint64())
}

func TestPausesReachTheEngine(t *testing.T) {
	m, _ := newTestMarket(t)
	m.Pauses().Set("credit", true)
	err := m.Execute(func(e *credit.Engine) error {
		return e.SellCreditLimit(trader, credit.SellCreditLimitParams{})
	})
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestPriceAndUnknownAsset(t *testing.T) {
	m, _ := newTestMarket(t)
	require.NoError(t, m.PushPrice(uint256.NewInt(1000), 1_700_000_000, "test"))
	quote, err := m.LatestPrice()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), quote.Price.Uint64())

	require.ErrorIs(t, m.Fund("DAI", trader, uint256.NewInt(1)), ErrUnknownAsset)
}

func TestConfigUpdatesSurviveRestartAndRollback(t *testing.T) {
	db := storage.NewMemDB()
	m, _ := openTestMarket(t, db)
	base := credit.DefaultConfig().Risk.CRLiquidation

	boom := errors.New("boom")
	err := m.Execute(func(e *credit.Engine) error {
		if err := e.UpdateConfig("crLiquidation", "1400000000000000000"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, m.engine.Config().Risk.CRLiquidation.Eq(base))

	require.NoError(t, m.Execute(func(e *credit.Engine) error {
		return e.UpdateConfig("crLiquidation", "1400000000000000000")
	}))

	reopened, _ := openTestMarket(t, db)
	got := reopened.engine.Config().Risk.CRLiquidation
	require.Equal(t, "1400000000000000000", got.Dec())
}
