package credit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fixedcredit/native/credit/curve"
	"fixedcredit/native/credit/fixedpoint"
)

// Config is the protocol parameter record. Percentages and ratios are
// 18-decimal fixed point; cash amounts use the borrow token decimals.
type Config struct {
	Risk   RiskConfig   `toml:"risk"`
	Fees   FeeConfig    `toml:"fees"`
	Oracle OracleConfig `toml:"oracle"`
}

// RiskConfig bounds position sizes, tenors and collateralisation.
type RiskConfig struct {
	CROpening                 *uint256.Int `toml:"CROpening"`
	CRLiquidation             *uint256.Int `toml:"CRLiquidation"`
	MinimumCreditBorrowAToken *uint256.Int `toml:"MinimumCreditBorrowAToken"`
	BorrowATokenCap           *uint256.Int `toml:"BorrowATokenCap"`
	MinTenor                  uint64       `toml:"MinTenorSeconds"`
	MaxTenor                  uint64       `toml:"MaxTenorSeconds"`
}

// FeeConfig captures protocol fees and liquidation splits.
type FeeConfig struct {
	SwapFeeAPR                       *uint256.Int   `toml:"SwapFeeAPR"`
	FragmentationFee                 *uint256.Int   `toml:"FragmentationFee"`
	LiquidationRewardPercent         *uint256.Int   `toml:"LiquidationRewardPercent"`
	OverdueCollateralProtocolPercent *uint256.Int   `toml:"OverdueCollateralProtocolPercent"`
	CollateralProtocolPercent        *uint256.Int   `toml:"CollateralProtocolPercent"`
	FeeRecipient                     common.Address `toml:"FeeRecipient"`
}

// OracleConfig controls the freshness window of the variable reference rate.
type OracleConfig struct {
	VariablePoolBorrowRateStaleRateInterval uint64 `toml:"VariableRateStaleIntervalSeconds"`
}

func percentOf(numerator, denominator uint64) *uint256.Int {
	v := new(uint256.Int).Mul(fixedpoint.Percent, uint256.NewInt(numerator))
	return v.Div(v, uint256.NewInt(denominator))
}

// DefaultConfig returns parameters suited to a 6-decimal borrow token. The
// fee recipient is left unset and must be provided.
func DefaultConfig() Config {
	usdc := uint256.NewInt(1_000_000)
	return Config{
		Risk: RiskConfig{
			CROpening:                 percentOf(150, 100),
			CRLiquidation:             percentOf(130, 100),
			MinimumCreditBorrowAToken: new(uint256.Int).Mul(uint256.NewInt(5), usdc),
			BorrowATokenCap:           new(uint256.Int).Mul(uint256.NewInt(1_000_000), usdc),
			MinTenor:                  60 * 60,
			MaxTenor:                  5 * curve.YearSeconds,
		},
		Fees: FeeConfig{
			SwapFeeAPR:                       percentOf(5, 1_000),
			FragmentationFee:                 new(uint256.Int).Mul(uint256.NewInt(5), usdc),
			LiquidationRewardPercent:         percentOf(5, 100),
			OverdueCollateralProtocolPercent: percentOf(1, 100),
			CollateralProtocolPercent:        percentOf(10, 100),
		},
		Oracle: OracleConfig{
			VariablePoolBorrowRateStaleRateInterval: 60 * 60,
		},
	}
}

// LoadConfig decodes a TOML parameter file, fills unset values from
// DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("credit: decode config %s: %w", path, err)
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnsureDefaults populates nil fields from DefaultConfig.
func (c *Config) EnsureDefaults() {
	d := DefaultConfig()
	fill := func(dst **uint256.Int, src *uint256.Int) {
		if *dst == nil {
			*dst = src
		}
	}
	fill(&c.Risk.CROpening, d.Risk.CROpening)
	fill(&c.Risk.CRLiquidation, d.Risk.CRLiquidation)
	fill(&c.Risk.MinimumCreditBorrowAToken, d.Risk.MinimumCreditBorrowAToken)
	fill(&c.Risk.BorrowATokenCap, d.Risk.BorrowATokenCap)
	fill(&c.Fees.SwapFeeAPR, d.Fees.SwapFeeAPR)
	fill(&c.Fees.FragmentationFee, d.Fees.FragmentationFee)
	fill(&c.Fees.LiquidationRewardPercent, d.Fees.LiquidationRewardPercent)
	fill(&c.Fees.OverdueCollateralProtocolPercent, d.Fees.OverdueCollateralProtocolPercent)
	fill(&c.Fees.CollateralProtocolPercent, d.Fees.CollateralProtocolPercent)
	if c.Risk.MinTenor == 0 {
		c.Risk.MinTenor = d.Risk.MinTenor
	}
	if c.Risk.MaxTenor == 0 {
		c.Risk.MaxTenor = d.Risk.MaxTenor
	}
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	out.Risk.CROpening = cloneAmount(c.Risk.CROpening)
	out.Risk.CRLiquidation = cloneAmount(c.Risk.CRLiquidation)
	out.Risk.MinimumCreditBorrowAToken = cloneAmount(c.Risk.MinimumCreditBorrowAToken)
	out.Risk.BorrowATokenCap = cloneAmount(c.Risk.BorrowATokenCap)
	out.Fees.SwapFeeAPR = cloneAmount(c.Fees.SwapFeeAPR)
	out.Fees.FragmentationFee = cloneAmount(c.Fees.FragmentationFee)
	out.Fees.LiquidationRewardPercent = cloneAmount(c.Fees.LiquidationRewardPercent)
	out.Fees.OverdueCollateralProtocolPercent = cloneAmount(c.Fees.OverdueCollateralProtocolPercent)
	out.Fees.CollateralProtocolPercent = cloneAmount(c.Fees.CollateralProtocolPercent)
	return out
}

func invalid(field, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}

// MaximumSwapFeeAPR is the swap fee APR at which a max-tenor trade would pay
// away the whole cash leg.
func (c Config) MaximumSwapFeeAPR() *uint256.Int {
	if c.Risk.MaxTenor == 0 {
		return new(uint256.Int)
	}
	out, err := fixedpoint.MulDivDown(fixedpoint.Percent, uint256.NewInt(curve.YearSeconds), uint256.NewInt(c.Risk.MaxTenor))
	if err != nil {
		return new(uint256.Int)
	}
	return out
}

// Validate checks every dependent invariant of the record at once.
func (c Config) Validate() error {
	amounts := map[string]*uint256.Int{
		"CROpening":                        c.Risk.CROpening,
		"CRLiquidation":                    c.Risk.CRLiquidation,
		"MinimumCreditBorrowAToken":        c.Risk.MinimumCreditBorrowAToken,
		"BorrowATokenCap":                  c.Risk.BorrowATokenCap,
		"SwapFeeAPR":                       c.Fees.SwapFeeAPR,
		"FragmentationFee":                 c.Fees.FragmentationFee,
		"LiquidationRewardPercent":         c.Fees.LiquidationRewardPercent,
		"OverdueCollateralProtocolPercent": c.Fees.OverdueCollateralProtocolPercent,
		"CollateralProtocolPercent":        c.Fees.CollateralProtocolPercent,
	}
	for name, v := range amounts {
		if v == nil {
			return invalid(name, "is required")
		}
	}
	if c.Risk.CRLiquidation.Lt(fixedpoint.Percent) {
		return invalid("CRLiquidation", "must be at least 100%%")
	}
	if c.Risk.CROpening.Lt(c.Risk.CRLiquidation) {
		return invalid("CROpening", "must not be below CRLiquidation")
	}
	if c.Risk.MinimumCreditBorrowAToken.IsZero() {
		return invalid("MinimumCreditBorrowAToken", "must be positive")
	}
	if c.Risk.MinTenor == 0 {
		return invalid("MinTenor", "must be positive")
	}
	if c.Risk.MinTenor >= c.Risk.MaxTenor {
		return invalid("MinTenor", "must be below MaxTenor")
	}
	if !c.Fees.SwapFeeAPR.Lt(c.MaximumSwapFeeAPR()) {
		return invalid("SwapFeeAPR", "must be below %s for MaxTenor %d", c.MaximumSwapFeeAPR().Dec(), c.Risk.MaxTenor)
	}
	for name, v := range map[string]*uint256.Int{
		"LiquidationRewardPercent":         c.Fees.LiquidationRewardPercent,
		"OverdueCollateralProtocolPercent": c.Fees.OverdueCollateralProtocolPercent,
		"CollateralProtocolPercent":        c.Fees.CollateralProtocolPercent,
	} {
		if v.Gt(fixedpoint.Percent) {
			return invalid(name, "must not exceed 100%%")
		}
	}
	if c.Fees.FeeRecipient == (common.Address{}) {
		return invalid("FeeRecipient", "is required")
	}
	return nil
}

// applyKey sets a single parameter on the receiver. The caller validates the
// whole record afterwards.
func (c *Config) applyKey(key, value string) error {
	value = strings.TrimSpace(value)
	parseAmount := func() (*uint256.Int, error) {
		v, err := uint256.FromDecimal(value)
		if err != nil {
			return nil, invalid(key, "value %q: %v", value, err)
		}
		return v, nil
	}
	parseSeconds := func() (uint64, error) {
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, invalid(key, "value %q: %v", value, err)
		}
		return v, nil
	}

	var err error
	switch key {
	case "crOpening":
		c.Risk.CROpening, err = parseAmount()
	case "crLiquidation":
		c.Risk.CRLiquidation, err = parseAmount()
	case "minimumCreditBorrowAToken":
		c.Risk.MinimumCreditBorrowAToken, err = parseAmount()
	case "borrowATokenCap":
		c.Risk.BorrowATokenCap, err = parseAmount()
	case "minTenor":
		c.Risk.MinTenor, err = parseSeconds()
	case "maxTenor":
		c.Risk.MaxTenor, err = parseSeconds()
	case "swapFeeAPR":
		c.Fees.SwapFeeAPR, err = parseAmount()
	case "fragmentationFee":
		c.Fees.FragmentationFee, err = parseAmount()
	case "liquidationRewardPercent":
		c.Fees.LiquidationRewardPercent, err = parseAmount()
	case "overdueCollateralProtocolPercent":
		c.Fees.OverdueCollateralProtocolPercent, err = parseAmount()
	case "collateralProtocolPercent":
		c.Fees.CollateralProtocolPercent, err = parseAmount()
	case "feeRecipient":
		if !common.IsHexAddress(value) {
			return invalid(key, "value %q is not an address", value)
		}
		c.Fees.FeeRecipient = common.HexToAddress(value)
	case "variablePoolBorrowRateStaleRateInterval":
		c.Oracle.VariablePoolBorrowRateStaleRateInterval, err = parseSeconds()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}
	return err
}
