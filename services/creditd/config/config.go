package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the credit market daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	MetricsAddress string          `yaml:"metrics_listen"`
	Log            LogConfig       `yaml:"log"`
	State          StateConfig     `yaml:"state"`
	Market         MarketConfig    `yaml:"market"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Indexer        IndexerConfig   `yaml:"indexer"`
	Keeper         KeeperConfig    `yaml:"keeper"`
}

// LogConfig selects the log level and an optional rotating file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StateConfig points at the LevelDB directory. An empty path keeps state in
// memory.
type StateConfig struct {
	Path string `yaml:"path"`
}

// TokenConfig names an underlying asset.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// PoolConfig configures the variable pool's reserve and interest curve.
type PoolConfig struct {
	Reserve          string  `yaml:"reserve"`
	BaseRate         float64 `yaml:"base_rate"`
	Slope1           float64 `yaml:"slope1"`
	Slope2           float64 `yaml:"slope2"`
	Kink             float64 `yaml:"kink"`
	ReserveFactorBps uint64  `yaml:"reserve_factor_bps"`
}

// OracleConfig bounds pushed prices.
type OracleConfig struct {
	Decimals        uint8  `yaml:"decimals"`
	MaxAgeSeconds   uint64 `yaml:"max_age_seconds"`
	MaxDeviationBps uint64 `yaml:"max_deviation_bps"`
}

// MarketConfig wires the credit engine.
type MarketConfig struct {
	ModuleAddress string       `yaml:"module_address"`
	ParamsFile    string       `yaml:"params_file"`
	Collateral    TokenConfig  `yaml:"collateral"`
	Borrow        TokenConfig  `yaml:"borrow"`
	Pool          PoolConfig   `yaml:"pool"`
	Oracle        OracleConfig `yaml:"oracle"`
	Keepers       []string     `yaml:"keepers"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Issuer         string   `yaml:"issuer"`
	Audience       []string `yaml:"audience"`
	HSSecretEnv    string   `yaml:"hs_secret_env"`
	MaxSkewSeconds int      `yaml:"max_skew_seconds"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// IndexerConfig selects the event archive database.
type IndexerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// KeeperConfig drives the background variable rate sync.
type KeeperConfig struct {
	Address             string `yaml:"address"`
	SyncIntervalSeconds int    `yaml:"sync_interval_seconds"`
}

// Load reads the YAML configuration from disk, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("CREDITD_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(getenv("CREDITD_STATE_PATH")); v != "" {
		cfg.State.Path = v
	}
	if v := strings.TrimSpace(getenv("CREDITD_INDEXER_DSN")); v != "" {
		cfg.Indexer.DSN = v
	}
	if v := strings.TrimSpace(getenv("CREDITD_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	cfg.MetricsAddress = strings.TrimSpace(cfg.MetricsAddress)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Market.Collateral.Symbol == "" {
		cfg.Market.Collateral = TokenConfig{Symbol: "WETH", Decimals: 18}
	}
	if cfg.Market.Borrow.Symbol == "" {
		cfg.Market.Borrow = TokenConfig{Symbol: "USDC", Decimals: 6}
	}
	cfg.Market.Collateral.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Market.Collateral.Symbol))
	cfg.Market.Borrow.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Market.Borrow.Symbol))
	if cfg.Market.Oracle.Decimals == 0 {
		cfg.Market.Oracle.Decimals = 18
	}
	keepers := make([]string, 0, len(cfg.Market.Keepers))
	for _, k := range cfg.Market.Keepers {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			keepers = append(keepers, trimmed)
		}
	}
	if k := strings.TrimSpace(cfg.Keeper.Address); k != "" && !containsFold(keepers, k) {
		keepers = append(keepers, k)
	}
	cfg.Market.Keepers = keepers
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Auth.HSSecretEnv == "" {
		cfg.Auth.HSSecretEnv = "CREDITD_JWT_SECRET"
	}
	if cfg.Auth.MaxSkewSeconds <= 0 {
		cfg.Auth.MaxSkewSeconds = 30
	}
}

func (cfg *Config) validate() error {
	if !common.IsHexAddress(cfg.Market.ModuleAddress) {
		return fmt.Errorf("market.module_address must be a hex address")
	}
	if !common.IsHexAddress(cfg.Market.Pool.Reserve) {
		return fmt.Errorf("market.pool.reserve must be a hex address")
	}
	for _, k := range cfg.Market.Keepers {
		if !common.IsHexAddress(k) {
			return fmt.Errorf("market.keepers: %q is not an address", k)
		}
	}
	if cfg.Keeper.Address != "" && !common.IsHexAddress(cfg.Keeper.Address) {
		return fmt.Errorf("keeper.address must be a hex address")
	}
	if cfg.Market.Collateral.Decimals > 18 || cfg.Market.Borrow.Decimals > 18 {
		return fmt.Errorf("market: token decimals above 18")
	}
	if cfg.Market.Collateral.Symbol == cfg.Market.Borrow.Symbol {
		return fmt.Errorf("market: collateral and borrow tokens must differ")
	}
	switch cfg.Indexer.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("indexer.driver must be postgres or sqlite")
	}
	if cfg.Indexer.Driver != "" && strings.TrimSpace(cfg.Indexer.DSN) == "" {
		return fmt.Errorf("indexer.dsn required for driver %s", cfg.Indexer.Driver)
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		return fmt.Errorf("auth.issuer required")
	}
	return nil
}

// KeeperAddresses returns the parsed keeper allowlist.
func (m MarketConfig) KeeperAddresses() []common.Address {
	out := make([]common.Address, 0, len(m.Keepers))
	for _, k := range m.Keepers {
		out = append(out, common.HexToAddress(k))
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
