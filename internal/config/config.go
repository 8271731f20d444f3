// Package config defines all configuration for the settlement engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via STAKECAST_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Admin   AdminConfig   `mapstructure:"admin"`
	Fees    FeeConfig     `mapstructure:"fees"`
	Stake   StakeConfig   `mapstructure:"stake"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Hook    HookConfig    `mapstructure:"hook"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// AdminConfig holds the single authorized role for the administrative surface
// (fee configuration, stake floor, staleness window).
type AdminConfig struct {
	Address string `mapstructure:"address"` // hex address of the authorized admin
}

// FeeConfig sets the protocol fee taken from winners' profit.
// Treasury receives the fee; FeeBps is bounded to [0, 10000].
type FeeConfig struct {
	Treasury string `mapstructure:"treasury"`
	FeeBps   uint32 `mapstructure:"fee_bps"`
}

// StakeConfig holds economic floors for prediction stakes.
//
//   - MinStakeAmount: the ledger rejects stakes below this.
//   - HookMinStake:   fixed stake the swap hook falls back to when 1% of the
//     swap output is positive but under MinStakeAmount.
type StakeConfig struct {
	MinStakeAmount string `mapstructure:"min_stake_amount"`
	HookMinStake   string `mapstructure:"hook_min_stake"`
}

// OracleConfig points the gateway at a Hermes-style price service and bounds
// how old a reading may be when a market is resolved.
type OracleConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// HookConfig controls the swap hook adapter.
// Strict=false is the permissive default: payloads that are the wrong length
// or carry out-of-range fields are treated as data meant for another consumer
// and skipped. Strict=true aborts the swap on any malformed payload instead.
type HookConfig struct {
	Strict bool `mapstructure:"strict"`
}

// StoreConfig sets where markets, tickets, and balances are persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig controls the HTTP/WebSocket API server.
type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: STAKECAST_ADMIN_ADDRESS, STAKECAST_TREASURY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STAKECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if addr := os.Getenv("STAKECAST_ADMIN_ADDRESS"); addr != "" {
		cfg.Admin.Address = addr
	}
	if addr := os.Getenv("STAKECAST_TREASURY"); addr != "" {
		cfg.Fees.Treasury = addr
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Admin.Address) {
		return fmt.Errorf("admin.address must be a hex address (set STAKECAST_ADMIN_ADDRESS)")
	}
	if !common.IsHexAddress(c.Fees.Treasury) {
		return fmt.Errorf("fees.treasury must be a hex address (set STAKECAST_TREASURY)")
	}
	if c.Fees.FeeBps > 10000 {
		return fmt.Errorf("fees.fee_bps must be <= 10000, got %d", c.Fees.FeeBps)
	}
	if c.Stake.MinStakeAmount == "" {
		return fmt.Errorf("stake.min_stake_amount is required")
	}
	if c.Stake.HookMinStake == "" {
		return fmt.Errorf("stake.hook_min_stake is required")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	if c.Oracle.MaxStaleness <= 0 {
		return fmt.Errorf("oracle.max_staleness must be > 0")
	}
	if c.Server.Enabled && c.Server.Port == 0 {
		return fmt.Errorf("server.port is required when server.enabled")
	}
	return nil
}
