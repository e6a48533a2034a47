// Package config loads the replay configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Genesis defaults: the block the exchange chain starts after.
const (
	DefaultGenesisHeight = 240000
	DefaultGenesisHash   = "000000000000000e7ad69c72afc00dc4e05fc15ae3061c47d3591d07c09f2928"
)

// Duration wraps time.Duration to accept human readable strings in both
// YAML and TOML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config is the full replay configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" toml:"store"`
	Exchange   ExchangeConfig   `yaml:"exchange" toml:"exchange"`
	Assets     AssetsConfig     `yaml:"assets" toml:"assets"`
	Chain      ChainConfig      `yaml:"chain" toml:"chain"`
	Settlement SettlementConfig `yaml:"settlement" toml:"settlement"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Serve      ServeConfig      `yaml:"serve" toml:"serve"`
}

// StoreConfig selects the snapshot backend.
type StoreConfig struct {
	// Driver is sqlite, leveldb or memory.
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// ExchangeConfig fixes the genesis block and the exchange-wide addresses.
type ExchangeConfig struct {
	GenesisHeight       int64  `yaml:"genesis_height" toml:"genesis_height"`
	GenesisHash         string `yaml:"genesis_hash" toml:"genesis_hash"`
	StateControlAddress string `yaml:"state_control_address" toml:"state_control_address"`
	CreateAssetAddress  string `yaml:"create_asset_address" toml:"create_asset_address"`
	OpenExchangeAddress string `yaml:"open_exchange_address" toml:"open_exchange_address"`
	PaymentLogAddress   string `yaml:"payment_log_address" toml:"payment_log_address"`
}

// AssetsConfig points at the asset init data.
type AssetsConfig struct {
	Dir string `yaml:"dir" toml:"dir"`

	// Network restricts address versions: mainnet, testnet or empty for any.
	Network string `yaml:"network" toml:"network"`
}

// ChainConfig configures the block source.
type ChainConfig struct {
	// Fixture is a YAML block file served as the chain.
	Fixture          string `yaml:"fixture" toml:"fixture"`
	MinConfirmations int64  `yaml:"min_confirmations" toml:"min_confirmations"`
}

// SettlementConfig configures outgoing payments.
type SettlementConfig struct {
	FromAddress   string `yaml:"from_address" toml:"from_address"`
	ChangeAddress string `yaml:"change_address" toml:"change_address"`
	Fee           int64  `yaml:"fee" toml:"fee"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Format is text or json.
	Format string `yaml:"format" toml:"format"`

	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`

	// File, when set, receives logs through a rotating writer.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

// MetricsConfig configures Prometheus collection.
type MetricsConfig struct {
	// Enabled defaults to true.
	Enabled *bool  `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// On reports whether metrics are collected and served.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// ServeConfig configures the long-running replay loop.
type ServeConfig struct {
	Listen       string   `yaml:"listen" toml:"listen"`
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads configuration from path. The format follows the extension:
// .toml for TOML, anything else is YAML. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("decode config: unknown keys %v", undecoded)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Path == "" && cfg.Store.Driver != "memory" {
		cfg.Store.Path = "openexchange.db"
	}
	if cfg.Exchange.GenesisHeight == 0 {
		cfg.Exchange.GenesisHeight = DefaultGenesisHeight
	}
	if cfg.Exchange.GenesisHash == "" {
		cfg.Exchange.GenesisHash = DefaultGenesisHash
	}
	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = "assets"
	}
	if cfg.Chain.MinConfirmations == 0 {
		cfg.Chain.MinConfirmations = 6
	}
	if cfg.Settlement.BatchSize == 0 {
		cfg.Settlement.BatchSize = 50
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 10
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Serve.Listen == "" {
		cfg.Serve.Listen = "127.0.0.1:9464"
	}
	if cfg.Serve.PollInterval.Duration == 0 {
		cfg.Serve.PollInterval.Duration = 30 * time.Second
	}
}

// Validate checks the configuration for values the replay cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "leveldb", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Exchange.GenesisHeight < 0 {
		errs = append(errs, fmt.Errorf("exchange.genesis_height: must not be negative"))
	}
	addrs := map[string]string{
		"exchange.state_control_address": c.Exchange.StateControlAddress,
		"exchange.create_asset_address":  c.Exchange.CreateAssetAddress,
		"exchange.open_exchange_address": c.Exchange.OpenExchangeAddress,
		"exchange.payment_log_address":   c.Exchange.PaymentLogAddress,
	}
	seen := make(map[string]string)
	for _, key := range slices.Sorted(maps.Keys(addrs)) {
		v := addrs[key]
		if v == "" {
			errs = append(errs, fmt.Errorf("%s: required", key))
			continue
		}
		if other, dup := seen[v]; dup {
			errs = append(errs, fmt.Errorf("%s: same address as %s", key, other))
		}
		seen[v] = key
	}
	switch c.Assets.Network {
	case "", "mainnet", "testnet":
	default:
		errs = append(errs, fmt.Errorf("assets.network: unknown network %q", c.Assets.Network))
	}
	if c.Chain.MinConfirmations < 1 {
		errs = append(errs, fmt.Errorf("chain.min_confirmations: must be at least 1"))
	}
	if c.Settlement.BatchSize < 1 || c.Settlement.BatchSize > 50 {
		errs = append(errs, fmt.Errorf("settlement.batch_size: must be between 1 and 50"))
	}
	if c.Settlement.Fee < 0 {
		errs = append(errs, fmt.Errorf("settlement.fee: must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path: must start with /"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
