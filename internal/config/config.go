// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Feed       FeedConfig       `toml:"feed"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds venue endpoints, chain parameters and optional L2
// API credentials. When the credentials are empty they are derived from the
// wallet at startup.
type PolymarketConfig struct {
	ClobHost          string  `toml:"clob_host"`
	WsHost            string  `toml:"ws_host"`
	ChainID           int     `toml:"chain_id"`
	SignatureType     int     `toml:"signature_type"`
	ApiKey            string  `toml:"api_key"`
	ApiSecret         string  `toml:"api_secret"`
	ApiPassphrase     string  `toml:"api_passphrase"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MarketPages       int     `toml:"market_pages"`
}

// ArbitrageConfig holds the detection thresholds and the execution gate.
type ArbitrageConfig struct {
	MaxCombinedPrice   decimal.Decimal `toml:"max_combined_price"`
	MinProfitThreshold decimal.Decimal `toml:"min_profit_threshold"`
	OrderSize          decimal.Decimal `toml:"order_size"`
	// MinOrderSize is the smallest share count worth submitting.
	MinOrderSize decimal.Decimal `toml:"min_order_size"`
	PollInterval duration        `toml:"poll_interval"`
	UseStreaming bool            `toml:"use_streaming"`
	MaxMarkets   int             `toml:"max_markets"`
	TopicFilter  bool            `toml:"topic_filter"`
	Keywords     []string        `toml:"keywords"`
	DryRun       bool            `toml:"dry_run"`
	DedupWindow  duration        `toml:"dedup_window"`
	// RefreshEvery and StatsEvery count polling ticks.
	RefreshEvery int `toml:"refresh_every"`
	StatsEvery   int `toml:"stats_every"`
}

// FeedConfig holds streaming-mode parameters.
type FeedConfig struct {
	BufferSize      int      `toml:"buffer_size"`
	InitialBackoff  duration `toml:"initial_backoff"`
	MaxBackoff      duration `toml:"max_backoff"`
	RefreshInterval duration `toml:"refresh_interval"`
	StatsInterval   duration `toml:"stats_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PairTTL    duration `toml:"pair_ttl"`
}

// PostgresConfig holds the execution journal connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the status server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// DefaultKeywords is the crypto topic set applied when the topic filter is on.
var DefaultKeywords = []string{"bitcoin", "btc", "ethereum", "eth", "crypto"}

// Defaults returns a Config populated with reasonable default values.
// Execution is disabled (dry_run) unless explicitly turned off.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:          "https://clob.polymarket.com",
			WsHost:            "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:           137,
			SignatureType:     0,
			RequestsPerSecond: 20,
			MarketPages:       5,
		},
		Arbitrage: ArbitrageConfig{
			MaxCombinedPrice:   decimal.RequireFromString("0.99"),
			MinProfitThreshold: decimal.RequireFromString("0.005"),
			OrderSize:          decimal.NewFromInt(10),
			MinOrderSize:       decimal.NewFromInt(1),
			PollInterval:       duration{2 * time.Second},
			UseStreaming:       true,
			MaxMarkets:         50,
			TopicFilter:        true,
			Keywords:           append([]string(nil), DefaultKeywords...),
			DryRun:             true,
			DedupWindow:        duration{5 * time.Second},
			RefreshEvery:       100,
			StatsEvery:         50,
		},
		Feed: FeedConfig{
			BufferSize:      1000,
			InitialBackoff:  duration{time.Second},
			MaxBackoff:      duration{60 * time.Second},
			RefreshInterval: duration{300 * time.Second},
			StatsInterval:   duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			PairTTL:    duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb",
			Prefix:         "stats",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port: 8000,
		},
		Notify: NotifyConfig{
			Events: []string{"partial_execution", "trade_filled", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// A signing key is only mandatory once orders can actually be sent.
	if !c.Arbitrage.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set when dry_run is false")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Arbitrage.UseStreaming && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty when use_streaming is set")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	ak := c.Polymarket.ApiKey != ""
	as := c.Polymarket.ApiSecret != ""
	ap := c.Polymarket.ApiPassphrase != ""
	if (ak || as || ap) && !(ak && as && ap) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		errs = append(errs, "polymarket: requests_per_second must be > 0")
	}
	if c.Polymarket.MarketPages < 1 {
		errs = append(errs, "polymarket: market_pages must be >= 1")
	}

	arb := c.Arbitrage
	if !arb.MaxCombinedPrice.IsPositive() || arb.MaxCombinedPrice.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("arbitrage: max_combined_price must be in (0, 1], got %s", arb.MaxCombinedPrice))
	}
	if arb.MinProfitThreshold.IsNegative() {
		errs = append(errs, "arbitrage: min_profit_threshold must be >= 0")
	}
	if !arb.OrderSize.IsPositive() {
		errs = append(errs, "arbitrage: order_size must be > 0")
	}
	if arb.MinOrderSize.IsNegative() {
		errs = append(errs, "arbitrage: min_order_size must be >= 0")
	}
	if arb.PollInterval.Duration <= 0 {
		errs = append(errs, "arbitrage: poll_interval must be > 0")
	}
	if arb.MaxMarkets < 1 {
		errs = append(errs, "arbitrage: max_markets must be >= 1")
	}
	if arb.TopicFilter && len(arb.Keywords) == 0 {
		errs = append(errs, "arbitrage: keywords must not be empty when topic_filter is set")
	}
	if arb.RefreshEvery < 1 || arb.StatsEvery < 1 {
		errs = append(errs, "arbitrage: refresh_every and stats_every must be >= 1")
	}

	if c.Feed.BufferSize < 1 {
		errs = append(errs, "feed: buffer_size must be >= 1")
	}
	if c.Feed.InitialBackoff.Duration <= 0 || c.Feed.MaxBackoff.Duration < c.Feed.InitialBackoff.Duration {
		errs = append(errs, "feed: initial_backoff must be > 0 and not exceed max_backoff")
	}
	if c.Feed.RefreshInterval.Duration <= 0 || c.Feed.StatsInterval.Duration <= 0 {
		errs = append(errs, "feed: refresh_interval and stats_interval must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
