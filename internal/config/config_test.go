package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nexusdex/internal/amm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, amm.DefaultFee, cfg.Pool.Fee)
	require.Equal(t, "NEXA", cfg.Pool.AssetA.Symbol)
	require.Equal(t, "1000", cfg.Genesis.InitialLiquidityA)
	require.Equal(t, "500", cfg.Genesis.InitialLiquidityB)
	require.Equal(t, 8080, cfg.API.Port)
	require.Equal(t, 10*time.Second, cfg.API.ReadTimeout)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
}

func TestLoadFileAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_POOL_SYMBOL", "USDX")
	path := writeConfig(t, `
pool:
  asset_b:
    address: "0x00000000000000000000000000000000000000b2"
    symbol: "${TEST_POOL_SYMBOL}"
    decimals: 6
  fee:
    numerator: 995
    denominator: 1000
api:
  port: 8181
  read_timeout: 3s
logging:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "USDX", cfg.Pool.AssetB.Symbol)
	require.Equal(t, uint8(6), cfg.Pool.AssetB.Decimals)
	require.Equal(t, amm.Fee{Numerator: 995, Denominator: 1000}, cfg.Pool.Fee)
	require.Equal(t, 8181, cfg.API.Port)
	require.Equal(t, 3*time.Second, cfg.API.ReadTimeout)
	require.Equal(t, "console", cfg.Logging.Format)
	// Untouched sections keep their defaults
	require.Equal(t, "NEXA", cfg.Pool.AssetA.Symbol)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "7000")
	t.Setenv("SQLITE_PATH", "/tmp/pool.db")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("NEXUS_FEE_NUMERATOR", "990")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, 7000, cfg.API.Port)
	require.Equal(t, "/tmp/pool.db", cfg.Persistence.SQLitePath)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, uint64(990), cfg.Pool.Fee.Numerator)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "identical assets",
			body: `
pool:
  asset_a: {address: "0x00000000000000000000000000000000000000a1", symbol: A}
  asset_b: {address: "0x00000000000000000000000000000000000000A1", symbol: B}
`,
		},
		{
			name: "identical assets without prefix",
			body: `
pool:
  asset_a: {address: "0x00000000000000000000000000000000000000a1", symbol: A}
  asset_b: {address: "00000000000000000000000000000000000000a1", symbol: B}
`,
		},
		{
			name: "bad address",
			body: `
pool:
  factory: "not-an-address"
`,
		},
		{
			name: "fee above one",
			body: `
pool:
  fee: {numerator: 1001, denominator: 1000}
`,
		},
		{
			name: "zero fee denominator",
			body: `
pool:
  fee: {numerator: 0, denominator: 0}
`,
		},
		{
			name: "port clash",
			body: `
api: {port: 9000}
metrics: {port: 9000}
`,
		},
		{
			name: "zero reconcile interval",
			body: `
reconcile: {enabled: true, interval: 0s}
`,
		},
		{
			name: "unknown log format",
			body: `
logging: {format: xml}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestParsedAddresses(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, common.HexToAddress("0xfa"), cfg.Pool.FactoryAddress())
	require.NotEqual(t, cfg.Pool.AssetA.ID(), cfg.Pool.AssetB.ID())
	require.NotEqual(t, common.Address{}, cfg.Genesis.DeployerAddress())
}
