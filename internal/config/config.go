package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"nexusdex/internal/amm"
)

// Config holds all application configuration.
type Config struct {
	Pool        PoolConfig        `yaml:"pool"`
	Genesis     GenesisConfig     `yaml:"genesis"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	API         APIConfig         `yaml:"api"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AssetConfig describes one pool asset.
type AssetConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// PoolConfig holds the pool's assets and pricing parameters.
type PoolConfig struct {
	Factory      string      `yaml:"factory"`
	AssetA       AssetConfig `yaml:"asset_a"`
	AssetB       AssetConfig `yaml:"asset_b"`
	Fee          amm.Fee     `yaml:"fee"`
	UpdateBuffer int         `yaml:"update_buffer"`
}

// GenesisConfig controls the token supply minted at startup and the
// liquidity seeded into an empty pool. Amounts are in whole token units.
type GenesisConfig struct {
	Deployer          string `yaml:"deployer"`
	SupplyA           string `yaml:"supply_a"`
	SupplyB           string `yaml:"supply_b"`
	InitialLiquidityA string `yaml:"initial_liquidity_a"`
	InitialLiquidityB string `yaml:"initial_liquidity_b"`
}

// PersistenceConfig holds database settings.
type PersistenceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// ReconcileConfig controls the periodic custody check.
type ReconcileConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	cfg.setDefaults()

	// Read YAML file if it exists
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > 0 {
		// Expand environment variables in YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for all configuration options.
func (c *Config) setDefaults() {
	c.Pool = PoolConfig{
		Factory: "0x00000000000000000000000000000000000000fa",
		AssetA: AssetConfig{
			Address:  "0x000000000000000000000000000000000000a0a1",
			Symbol:   "NEXA",
			Decimals: 18,
		},
		AssetB: AssetConfig{
			Address:  "0x000000000000000000000000000000000000b0b2",
			Symbol:   "NEXB",
			Decimals: 18,
		},
		Fee:          amm.DefaultFee,
		UpdateBuffer: 256,
	}
	c.Genesis = GenesisConfig{
		Deployer:          "0x00000000000000000000000000000000000de910",
		SupplyA:           "1000000",
		SupplyB:           "1000000",
		InitialLiquidityA: "1000",
		InitialLiquidityB: "500",
	}
	c.Persistence = PersistenceConfig{
		Enabled:    true,
		SQLitePath: "./data/nexusdex.db",
	}
	c.Metrics = MetricsConfig{
		Enabled: true,
		Port:    9090,
		Path:    "/metrics",
	}
	c.API = APIConfig{
		Enabled:         true,
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		RateLimit:       50,
		RateBurst:       100,
	}
	c.Reconcile = ReconcileConfig{
		Enabled:  true,
		Interval: 30 * time.Second,
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// applyEnvOverrides applies environment variable overrides to configuration.
func (c *Config) applyEnvOverrides() {
	// Genesis config
	if v := os.Getenv("NEXUS_DEPLOYER"); v != "" {
		c.Genesis.Deployer = v
	}

	// Pool config
	if v := os.Getenv("NEXUS_FEE_NUMERATOR"); v != "" {
		var num uint64
		if _, err := fmt.Sscanf(v, "%d", &num); err == nil && num > 0 {
			c.Pool.Fee.Numerator = num
		}
	}

	// API config
	if v := os.Getenv("API_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.API.Port = port
		}
	}

	// Metrics config
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Metrics.Port = port
		}
	}

	// Persistence config
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Persistence.SQLitePath = v
	}

	// Logging config
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

// validate checks that all required configuration values are present and valid.
func (c *Config) validate() error {
	for name, addr := range map[string]string{
		"pool.factory":         c.Pool.Factory,
		"pool.asset_a.address": c.Pool.AssetA.Address,
		"pool.asset_b.address": c.Pool.AssetB.Address,
		"genesis.deployer":     c.Genesis.Deployer,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s must be a hex address, got %q", name, addr)
		}
	}
	if common.HexToAddress(c.Pool.AssetA.Address) == common.HexToAddress(c.Pool.AssetB.Address) {
		return fmt.Errorf("pool.asset_a and pool.asset_b must differ")
	}
	if c.Pool.AssetA.Symbol == "" || c.Pool.AssetB.Symbol == "" {
		return fmt.Errorf("pool asset symbols are required")
	}
	if c.Pool.AssetA.Decimals > 77 || c.Pool.AssetB.Decimals > 77 {
		return fmt.Errorf("pool asset decimals must be at most 77")
	}
	if err := c.Pool.Fee.Validate(); err != nil {
		return fmt.Errorf("pool.fee: %w", err)
	}
	if c.Persistence.Enabled && c.Persistence.SQLitePath == "" {
		return fmt.Errorf("persistence.sqlite_path is required when persistence is enabled")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid port number")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid port number")
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return fmt.Errorf("api.rate_limit and api.rate_burst must not be negative")
	}
	if c.API.Enabled && c.Metrics.Enabled && c.API.Port == c.Metrics.Port {
		return fmt.Errorf("api.port and metrics.port must differ")
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}

// FactoryAddress returns the parsed factory address.
func (c *PoolConfig) FactoryAddress() common.Address {
	return common.HexToAddress(c.Factory)
}

// ID returns the parsed asset address.
func (a AssetConfig) ID() common.Address {
	return common.HexToAddress(a.Address)
}

// DeployerAddress returns the parsed deployer address.
func (g *GenesisConfig) DeployerAddress() common.Address {
	return common.HexToAddress(g.Deployer)
}
