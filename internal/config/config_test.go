package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.True(t, cfg.Arbitrage.MaxCombinedPrice.Equal(decimal.RequireFromString("0.99")))
	assert.True(t, cfg.Arbitrage.MinProfitThreshold.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, cfg.Arbitrage.OrderSize.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2*time.Second, cfg.Arbitrage.PollInterval.Duration)
	assert.True(t, cfg.Arbitrage.UseStreaming)
	assert.Equal(t, 50, cfg.Arbitrage.MaxMarkets)
	assert.True(t, cfg.Arbitrage.TopicFilter)
	assert.True(t, cfg.Arbitrage.DryRun, "must default to non-executing")
	assert.Equal(t, time.Second, cfg.Feed.InitialBackoff.Duration)
	assert.Equal(t, 60*time.Second, cfg.Feed.MaxBackoff.Duration)

	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Arbitrage.DryRun = false
	cfg.Arbitrage.MaxCombinedPrice = decimal.RequireFromString("1.5")
	cfg.Arbitrage.MaxMarkets = 0

	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "wallet")
	assert.Contains(t, msg, "max_combined_price")
	assert.Contains(t, msg, "max_markets")
}

func TestValidate_PartialAPICredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Polymarket.ApiKey = "key"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must all be set together")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "polyarb.toml")
	body := `
log_level = "debug"

[arbitrage]
max_combined_price = "0.98"
max_markets = 10
poll_interval = "500ms"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("MAX_MARKETS", "25")
	t.Setenv("POLYARB_ARBITRAGE_MAX_MARKETS", "30")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("POLYMARKET_PRIVATE_KEY", "0xabc")
	t.Setenv("POLL_INTERVAL_MS", "750")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Arbitrage.MaxCombinedPrice.Equal(decimal.RequireFromString("0.98")))
	assert.Equal(t, 30, cfg.Arbitrage.MaxMarkets, "POLYARB_* wins over legacy names")
	assert.False(t, cfg.Arbitrage.DryRun)
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, 750*time.Millisecond, cfg.Arbitrage.PollInterval.Duration)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Arbitrage.MaxMarkets)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Polymarket.ApiSecret = "secret"
	cfg.Notify.TelegramToken = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Polymarket.ApiSecret)
	assert.Equal(t, "", out.Notify.TelegramToken)
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)

	out.Arbitrage.Keywords[0] = "changed"
	assert.Equal(t, "bitcoin", cfg.Arbitrage.Keywords[0])
}
