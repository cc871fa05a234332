package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
)

// Dependencies bundles everything the orchestrator and the status server
// need. Optional backends are left nil when disabled.
type Dependencies struct {
	Clob     *polymarket.ClobClient
	Registry *arbitrage.Registry
	Detector *arbitrage.Detector
	// Engine is nil when the bot cannot trade (dry run or no signing key).
	Engine *executor.Engine
	// Feed is nil in polling mode.
	Feed *feed.Ingestor

	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus
	Executions domain.ArbExecutionStore
	Stats      *s3blob.StatsArchiver
	Notifier   *notify.Notifier

	// Checks are the backend health probes served on /api/health.
	Checks map[string]handler.Pinger
}

// Wire builds every dependency from cfg. The returned cleanup releases them
// in reverse order and must be called even when Run fails later.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	metrics.InitMetrics()
	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Wallet and venue ---
	signer, err := newSigner(cfg, logger)
	if err != nil {
		return fail(err)
	}

	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, auth, cfg.Polymarket.RequestsPerSecond, logger)

	trading := signer != nil && !cfg.Arbitrage.DryRun
	if trading && !deps.Clob.HasCredentials() {
		logger.InfoContext(ctx, "deriving CLOB API credentials", slog.String("address", signer.Address().Hex()))
		if _, err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			return fail(fmt.Errorf("wire: derive api key: %w", err))
		}
	}

	// --- Redis ---
	var pairCache domain.PairCache
	var locks domain.LockManager
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		pairCache = redis.NewPairCache(redisClient, cfg.Redis.PairTTL.Duration)
		locks = redis.NewLockManager(redisClient)
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PairTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient
	}

	// --- PostgreSQL execution journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Executions = postgres.NewArbExecutionStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient
	}

	// --- S3 statistics snapshots ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Stats = s3blob.NewStatsArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
		deps.Checks["s3"] = handler.PingFunc(s3Client.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Arbitrage core ---
	deps.Registry = arbitrage.NewRegistry(arbitrage.RegistryConfig{
		Lister:      deps.Clob,
		Cache:       pairCache,
		MaxMarkets:  cfg.Arbitrage.MaxMarkets,
		MarketPages: cfg.Polymarket.MarketPages,
		TopicFilter: cfg.Arbitrage.TopicFilter,
		Keywords:    cfg.Arbitrage.Keywords,
		Logger:      logger,
	})
	deps.Detector = arbitrage.NewDetector(deps.Clob, arbitrage.Thresholds{
		MaxCombinedPrice:   cfg.Arbitrage.MaxCombinedPrice,
		MinProfitThreshold: cfg.Arbitrage.MinProfitThreshold,
	}, logger)

	if trading {
		engineCfg := executor.Config{
			Signer:      crypto.NewOrderBuilder(signer, cfg.Wallet.SafeAddress, cfg.Polymarket.SignatureType),
			Poster:      deps.Clob,
			Locks:       locks,
			DedupWindow: cfg.Arbitrage.DedupWindow.Duration,
			Logger:      logger,
		}
		if deps.Executions != nil {
			engineCfg.Store = deps.Executions
		}
		if deps.Notifier.Enabled() {
			engineCfg.Alerter = deps.Notifier
		}
		deps.Engine = executor.NewEngine(engineCfg)
	}

	if cfg.Arbitrage.UseStreaming {
		deps.Feed = feed.NewIngestor(feed.Config{
			Dialer:         feed.NewWSDialer(MarketChannelURL(cfg.Polymarket.WsHost)),
			BufferSize:     cfg.Feed.BufferSize,
			InitialBackoff: cfg.Feed.InitialBackoff.Duration,
			MaxBackoff:     cfg.Feed.MaxBackoff.Duration,
			Logger:         logger,
		})
	}

	return deps, cleanup, nil
}

// newSigner resolves the wallet key. In dry run a missing key is not an
// error: the bot then only detects and logs.
func newSigner(cfg *config.Config, logger *slog.Logger) (*crypto.Signer, error) {
	key, err := crypto.ResolveKey(crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		if cfg.Arbitrage.DryRun && cfg.Wallet.PrivateKey == "" && cfg.Wallet.EncryptedKeyPath == "" {
			logger.Info("no signing key configured, running detection only")
			return nil, nil
		}
		return nil, fmt.Errorf("wire: resolve signing key: %w", err)
	}
	signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
	if err != nil {
		return nil, fmt.Errorf("wire: signer: %w", err)
	}
	return signer, nil
}

// MarketChannelURL returns the market-channel endpoint for a WebSocket host.
// A host that already names the channel path is used unchanged.
func MarketChannelURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasSuffix(host, "/ws/market") {
		return host
	}
	return host + "/ws/market"
}
