package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. An empty path, or a path that does not exist, leaves the
// defaults in place so the bot can be driven by the environment alone. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyLegacyEnv(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyLegacyEnv honours the flat variable names used by earlier deployments
// of the bot. POLYARB_* variables are applied afterwards and win.
func applyLegacyEnv(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "POLYMARKET_PRIVATE_KEY")
	setDecimal(&cfg.Arbitrage.MaxCombinedPrice, "MAX_COMBINED_PRICE")
	setDecimal(&cfg.Arbitrage.MinProfitThreshold, "MIN_PROFIT_THRESHOLD")
	setDecimal(&cfg.Arbitrage.OrderSize, "ORDER_SIZE")
	setMillis(&cfg.Arbitrage.PollInterval, "POLL_INTERVAL_MS")
	setBool(&cfg.Arbitrage.UseStreaming, "USE_WEBSOCKET")
	setInt(&cfg.Arbitrage.MaxMarkets, "MAX_MARKETS")
	setBool(&cfg.Arbitrage.TopicFilter, "CRYPTO_ONLY")
	setBool(&cfg.Arbitrage.DryRun, "DRY_RUN")
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "POLYARB_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYARB_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYARB_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYARB_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYARB_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ApiKey, "POLYARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLYARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLYARB_POLYMARKET_API_PASSPHRASE")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "POLYARB_POLYMARKET_REQUESTS_PER_SECOND")
	setInt(&cfg.Polymarket.MarketPages, "POLYARB_POLYMARKET_MARKET_PAGES")

	// ── Arbitrage ──
	setDecimal(&cfg.Arbitrage.MaxCombinedPrice, "POLYARB_ARBITRAGE_MAX_COMBINED_PRICE")
	setDecimal(&cfg.Arbitrage.MinProfitThreshold, "POLYARB_ARBITRAGE_MIN_PROFIT_THRESHOLD")
	setDecimal(&cfg.Arbitrage.OrderSize, "POLYARB_ARBITRAGE_ORDER_SIZE")
	setDecimal(&cfg.Arbitrage.MinOrderSize, "POLYARB_ARBITRAGE_MIN_ORDER_SIZE")
	setDuration(&cfg.Arbitrage.PollInterval, "POLYARB_ARBITRAGE_POLL_INTERVAL")
	setBool(&cfg.Arbitrage.UseStreaming, "POLYARB_ARBITRAGE_USE_STREAMING")
	setInt(&cfg.Arbitrage.MaxMarkets, "POLYARB_ARBITRAGE_MAX_MARKETS")
	setBool(&cfg.Arbitrage.TopicFilter, "POLYARB_ARBITRAGE_TOPIC_FILTER")
	setStringSlice(&cfg.Arbitrage.Keywords, "POLYARB_ARBITRAGE_KEYWORDS")
	setBool(&cfg.Arbitrage.DryRun, "POLYARB_ARBITRAGE_DRY_RUN")
	setDuration(&cfg.Arbitrage.DedupWindow, "POLYARB_ARBITRAGE_DEDUP_WINDOW")
	setInt(&cfg.Arbitrage.RefreshEvery, "POLYARB_ARBITRAGE_REFRESH_EVERY")
	setInt(&cfg.Arbitrage.StatsEvery, "POLYARB_ARBITRAGE_STATS_EVERY")

	// ── Feed ──
	setInt(&cfg.Feed.BufferSize, "POLYARB_FEED_BUFFER_SIZE")
	setDuration(&cfg.Feed.InitialBackoff, "POLYARB_FEED_INITIAL_BACKOFF")
	setDuration(&cfg.Feed.MaxBackoff, "POLYARB_FEED_MAX_BACKOFF")
	setDuration(&cfg.Feed.RefreshInterval, "POLYARB_FEED_REFRESH_INTERVAL")
	setDuration(&cfg.Feed.StatsInterval, "POLYARB_FEED_STATS_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PairTTL, "POLYARB_REDIS_PAIR_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "POLYARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYARB_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYARB_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setMillis(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			dst.Duration = time.Duration(n) * time.Millisecond
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
