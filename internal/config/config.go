// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/exchange"
)

const EnvPrefix = "WHALE_TRACKER"

type TrackedAddress struct {
	Address string `mapstructure:"address" json:"address"`
	Label   string `mapstructure:"label" json:"label,omitempty"`
}

type TelegramConfig struct {
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
	BotToken       string `mapstructure:"bot_token" json:"bot_token"`
	ChatID         int64  `mapstructure:"chat_id" json:"chat_id"`
	PollTimeoutSec int    `mapstructure:"poll_timeout" json:"poll_timeout"`
}

type LogConfig struct {
	File       string `mapstructure:"file" json:"file"`
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
	Debug      bool   `mapstructure:"debug" json:"debug"`
}

type Config struct {
	APIURL             string           `mapstructure:"api_url" json:"api_url"`
	UseTestnet         bool             `mapstructure:"use_testnet" json:"use_testnet"`
	TrackedAddresses   []TrackedAddress `mapstructure:"tracked_addresses" json:"tracked_addresses"`
	PollingIntervalSec int              `mapstructure:"polling_interval" json:"polling_interval"`
	ErrorBackoffSec    int              `mapstructure:"error_backoff" json:"error_backoff"`
	MinPositionSize    string           `mapstructure:"min_position_size" json:"min_position_size"`
	MinChangeThreshold string           `mapstructure:"min_change_threshold" json:"min_change_threshold"`
	DataDir            string           `mapstructure:"data_dir" json:"data_dir"`
	FetchTimeoutMs     int              `mapstructure:"fetch_timeout" json:"fetch_timeout"`
	DeliverTimeoutMs   int              `mapstructure:"deliver_timeout" json:"deliver_timeout"`
	DeliveryDelayMs    int              `mapstructure:"delivery_delay" json:"delivery_delay"`
	Workers            int              `mapstructure:"workers" json:"workers"`
	NotifyOpened       bool             `mapstructure:"notify_opened" json:"notify_opened"`
	HTTPAddr           string           `mapstructure:"http_addr" json:"http_addr"`
	CheckCacheTTLSec   int              `mapstructure:"check_cache_ttl" json:"check_cache_ttl"`
	Telegram           TelegramConfig   `mapstructure:"telegram" json:"telegram"`
	Log                LogConfig        `mapstructure:"log" json:"log"`

	// parsed from the string thresholds by Load
	MinPosition decimal.Decimal `mapstructure:"-" json:"-"`
	MinChange   decimal.Decimal `mapstructure:"-" json:"-"`
}

const (
	DefaultPollingInterval    = 30
	DefaultErrorBackoff       = 10
	DefaultMinPositionSize    = "1000"
	DefaultMinChangeThreshold = "500"
	DefaultDataDir            = "data"
	DefaultFetchTimeout       = 10000
	DefaultDeliverTimeout     = 10000
	DefaultDeliveryDelay      = 100
	DefaultWorkers            = 4
	DefaultPollTimeout        = 30
	DefaultCheckCacheTTL      = 30

	// below this the exchange rate limits start to matter
	shortPollingInterval = 10
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api_url":               "",
		"use_testnet":           false,
		"polling_interval":      DefaultPollingInterval,
		"error_backoff":         DefaultErrorBackoff,
		"min_position_size":     DefaultMinPositionSize,
		"min_change_threshold":  DefaultMinChangeThreshold,
		"data_dir":              DefaultDataDir,
		"fetch_timeout":         DefaultFetchTimeout,
		"deliver_timeout":       DefaultDeliverTimeout,
		"delivery_delay":        DefaultDeliveryDelay,
		"workers":               DefaultWorkers,
		"notify_opened":         false,
		"http_addr":             "",
		"check_cache_ttl":       DefaultCheckCacheTTL,
		"telegram.enabled":      false,
		"telegram.bot_token":    "",
		"telegram.chat_id":      0,
		"telegram.poll_timeout": DefaultPollTimeout,
		"log.file":              "logs/whale-tracker.log",
		"log.max_size":          50,
		"log.max_backups":       5,
		"log.max_age":           14,
		"log.compress":          true,
		"log.debug":             false,
	}
}

// LoadConfig reads path (JSON or YAML), overlays WHALE_TRACKER_* environment
// variables and validates the result. An empty or missing path means
// defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.APIURL != "" {
		if err := validateURL(cfg.APIURL, "http"); err != nil {
			return fmt.Errorf("invalid api_url: %w", err)
		}
	}

	for i, a := range cfg.TrackedAddresses {
		if err := domain.ValidateAddress(a.Address); err != nil {
			return fmt.Errorf("tracked_addresses[%d]: %w", i, err)
		}
	}

	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if err := parseThresholds(cfg); err != nil {
		return err
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken == "" {
			return errors.New("telegram enabled but telegram.bot_token is not set")
		}
		if cfg.Telegram.ChatID == 0 {
			return errors.New("telegram enabled but telegram.chat_id is not set")
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	checks := []struct {
		name  string
		value int
	}{
		{"polling_interval", cfg.PollingIntervalSec},
		{"error_backoff", cfg.ErrorBackoffSec},
		{"fetch_timeout", cfg.FetchTimeoutMs},
		{"deliver_timeout", cfg.DeliverTimeoutMs},
		{"workers", cfg.Workers},
		{"check_cache_ttl", cfg.CheckCacheTTLSec},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeoutSec},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %d", c.name, c.value)
		}
	}
	if cfg.DeliveryDelayMs < 0 {
		return fmt.Errorf("invalid delivery_delay: %d", cfg.DeliveryDelayMs)
	}
	return nil
}

func parseThresholds(cfg *Config) error {
	var err error
	if cfg.MinPosition, err = parseAmount("min_position_size", cfg.MinPositionSize); err != nil {
		return err
	}
	if cfg.MinChange, err = parseAmount("min_change_threshold", cfg.MinChangeThreshold); err != nil {
		return err
	}
	return nil
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", name)
	}
	return d, nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// loadEnvironmentVariables handles the values that AutomaticEnv cannot map
// onto structured keys: WHALE_TRACKER_TRACKED_ADDRESSES is a comma separated
// list of address[:label] items and replaces the configured list.
func loadEnvironmentVariables(v *viper.Viper) {
	envAddresses, ok := os.LookupEnv(EnvPrefix + "_TRACKED_ADDRESSES")
	if !ok {
		return
	}

	tracked := []map[string]interface{}{}
	for _, item := range strings.Split(envAddresses, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		address, label, _ := strings.Cut(item, ":")
		tracked = append(tracked, map[string]interface{}{
			"address": strings.TrimSpace(address),
			"label":   strings.TrimSpace(label),
		})
	}
	v.Set("tracked_addresses", tracked)
}

// Warnings lists settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var out []string
	if c.PollingIntervalSec < shortPollingInterval {
		out = append(out, fmt.Sprintf("polling interval of %ds is very short, consider >= %ds",
			c.PollingIntervalSec, shortPollingInterval))
	}
	if len(c.TrackedAddresses) == 0 {
		out = append(out, "no tracked_addresses configured, only addresses added with /add will be tracked")
	}
	if !c.Telegram.Enabled {
		out = append(out, "telegram disabled, changes are only logged")
	}
	return out
}

// Endpoint is the exchange API base URL: api_url when set, else mainnet or testnet.
func (c *Config) Endpoint() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	if c.UseTestnet {
		return exchange.TestnetURL
	}
	return exchange.MainnetURL
}

func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSec) * time.Second
}

func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSec) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func (c *Config) DeliverTimeout() time.Duration {
	return time.Duration(c.DeliverTimeoutMs) * time.Millisecond
}

func (c *Config) DeliveryDelay() time.Duration {
	return time.Duration(c.DeliveryDelayMs) * time.Millisecond
}

func (c *Config) CheckCacheTTL() time.Duration {
	return time.Duration(c.CheckCacheTTLSec) * time.Second
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSec) * time.Second
}

// Data files, all under data_dir.
func (c *Config) PositionsFile() string   { return filepath.Join(c.DataDir, "positions.json") }
func (c *Config) AddressesFile() string   { return filepath.Join(c.DataDir, "addresses.json") }
func (c *Config) SubscribersFile() string { return filepath.Join(c.DataDir, "subscribers.json") }
func (c *Config) ChangesFile() string     { return filepath.Join(c.DataDir, "changes.csv") }

// Masked returns a copy safe to print: the bot token keeps only its last
// four characters.
func (c *Config) Masked() Config {
	out := *c
	out.TrackedAddresses = append([]TrackedAddress(nil), c.TrackedAddresses...)
	out.Telegram.BotToken = MaskSecret(c.Telegram.BotToken)
	return out
}

func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
