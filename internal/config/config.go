// Package config loads the indexer configuration: a YAML file describing the
// chains to index plus environment overrides for credentials and DSNs.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ChainKind selects the adapter family for a network.
type ChainKind string

const (
	KindEVM    ChainKind = "evm"
	KindSolana ChainKind = "solana"
)

// ChainDescriptor configures one network.
type ChainDescriptor struct {
	Network     string    `yaml:"network"`
	Kind        ChainKind `yaml:"kind"`
	RPCEndpoint string    `yaml:"rpc_endpoint"`
	WSEndpoint  string    `yaml:"ws_endpoint"`

	// Contract is the curve contract (EVM) or program ID (Solana).
	Contract string `yaml:"contract"`
	// Vault is the program's SOL custody account, Solana only.
	Vault string `yaml:"vault"`

	// StartPosition is the contract deployment block or slot; backfill
	// starts here when no cursor exists.
	StartPosition uint64 `yaml:"start_position"`
	// ChunkSize bounds one backfill range.
	ChunkSize uint64 `yaml:"chunk_size"`
	// RatePerSec caps RPC calls for the network, zero means unlimited.
	RatePerSec float64 `yaml:"rate_per_sec"`

	// EthPriceUSD pins the native currency price used for USD volume.
	// Decimal string; yaml cannot decode decimals directly.
	EthPriceUSD string `yaml:"eth_price_usd"`
}

// PriceUSD parses the pinned native currency price.
func (d *ChainDescriptor) PriceUSD() (decimal.Decimal, error) {
	p, err := decimal.NewFromString(d.EthPriceUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("eth_price_usd: %w", err)
	}
	return p, nil
}

// Validate checks one descriptor.
func (d *ChainDescriptor) Validate() error {
	if d.Network == "" {
		return errors.New("network is required")
	}
	if d.Kind != KindEVM && d.Kind != KindSolana {
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	if d.RPCEndpoint == "" {
		return errors.New("rpc_endpoint is required")
	}
	if d.Contract == "" {
		return errors.New("contract is required")
	}
	if d.Kind == KindSolana && d.Vault == "" {
		return errors.New("vault is required for solana networks")
	}
	price, err := d.PriceUSD()
	if err != nil {
		return err
	}
	if !price.IsPositive() {
		return errors.New("eth_price_usd must be positive")
	}
	return nil
}

// CurveConfig holds the contract constants shared by every network, as
// decimal strings.
type CurveConfig struct {
	InitialVirtualEth   string `yaml:"initial_virtual_eth"`
	InitialVirtualToken string `yaml:"initial_virtual_token"`
	TotalSupply         string `yaml:"total_supply"`
	TargetMarketCap     string `yaml:"target_market_cap"`
}

// CurveValues are the parsed contract constants.
type CurveValues struct {
	InitialVirtualEth   decimal.Decimal
	InitialVirtualToken decimal.Decimal
	TotalSupply         decimal.Decimal
	TargetMarketCap     decimal.Decimal
}

// Parse converts the configured strings into decimals.
func (c CurveConfig) Parse() (CurveValues, error) {
	var (
		v   CurveValues
		err error
	)
	if v.InitialVirtualEth, err = decimal.NewFromString(c.InitialVirtualEth); err != nil {
		return v, fmt.Errorf("initial_virtual_eth: %w", err)
	}
	if v.InitialVirtualToken, err = decimal.NewFromString(c.InitialVirtualToken); err != nil {
		return v, fmt.Errorf("initial_virtual_token: %w", err)
	}
	if v.TotalSupply, err = decimal.NewFromString(c.TotalSupply); err != nil {
		return v, fmt.Errorf("total_supply: %w", err)
	}
	if v.TargetMarketCap, err = decimal.NewFromString(c.TargetMarketCap); err != nil {
		return v, fmt.Errorf("target_market_cap: %w", err)
	}
	return v, nil
}

// Config is the full indexer configuration.
type Config struct {
	Networks []ChainDescriptor `yaml:"networks"`
	Curve    CurveConfig       `yaml:"curve"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// Load reads a YAML config file and applies environment overrides:
// POSTGRES_DSN, CLICKHOUSE_DSN and REDIS_ADDR replace their file
// counterparts when set.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		cfg.ClickhouseDSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Networks) == 0 {
		return errors.New("at least one network is required")
	}
	seen := make(map[string]bool, len(c.Networks))
	for i := range c.Networks {
		d := &c.Networks[i]
		if seen[d.Network] {
			return fmt.Errorf("network %q: duplicate network name", d.Network)
		}
		seen[d.Network] = true
	}
	if c.PostgresDSN == "" {
		return errors.New("postgres_dsn is required")
	}
	return nil
}

// ValidNetworks partitions descriptors into usable ones and per-network
// errors. A misconfigured network must not prevent the others from starting.
func (c *Config) ValidNetworks() ([]ChainDescriptor, map[string]error) {
	var valid []ChainDescriptor
	invalid := make(map[string]error)
	for _, d := range c.Networks {
		if err := d.Validate(); err != nil {
			name := d.Network
			if name == "" {
				name = fmt.Sprintf("networks[%d]", len(valid)+len(invalid))
			}
			invalid[name] = err
			continue
		}
		valid = append(valid, d)
	}
	return valid, invalid
}
