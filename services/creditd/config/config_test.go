package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
listen: ":9000"
market:
  module_address: "0x00000000000000000000000000000000000c0ffe"
  params_file: "credit.toml"
  keepers: [" 0x000000000000000000000000000000000000beef ", ""]
  pool:
    reserve: "0x0000000000000000000000000000000000009001"
    base_rate: 0.02
auth:
  issuer: creditd
indexer:
  driver: SQLite
  dsn: "file::memory:"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creditd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadNormalizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "WETH", cfg.Market.Collateral.Symbol)
	require.Equal(t, uint8(6), cfg.Market.Borrow.Decimals)
	require.Equal(t, uint8(18), cfg.Market.Oracle.Decimals)
	require.Equal(t, "sqlite", cfg.Indexer.Driver)
	require.Len(t, cfg.Market.KeeperAddresses(), 1)
	require.Equal(t, "CREDITD_JWT_SECRET", cfg.Auth.HSSecretEnv)
	require.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing module": "auth:\n  issuer: x\nmarket:\n  pool:\n    reserve: \"0x0000000000000000000000000000000000009001\"\n",
		"unknown field":  sample + "bogus: 1\n",
		"bad driver":     "auth:\n  issuer: x\nindexer:\n  driver: mysql\n  dsn: x\nmarket:\n  module_address: \"0x00000000000000000000000000000000000c0ffe\"\n  pool:\n    reserve: \"0x0000000000000000000000000000000000009001\"\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		require.Error(t, err, name)
	}
	_, err := Load("")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Config{}
	cfg.applyEnv(func(key string) string {
		return map[string]string{"CREDITD_LISTEN": ":7000", "CREDITD_LOG_LEVEL": "debug"}[key]
	})
	require.Equal(t, ":7000", cfg.ListenAddress)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestSyncKeeperJoinsKeeperSet(t *testing.T) {
	body := sample + "keeper:\n  address: \"0x000000000000000000000000000000000000BEEF\"\n  sync_interval_seconds: 60\n"
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Len(t, cfg.Market.Keepers, 1)

	body = sample + "keeper:\n  address: \"0x0000000000000000000000000000000000000abc\"\n"
	cfg, err = Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Len(t, cfg.Market.KeeperAddresses(), 2)
}
