package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/niftyarb/internal/blob/s3"
	"github.com/alanyoungcy/niftyarb/internal/browser"
	rediscache "github.com/alanyoungcy/niftyarb/internal/cache/redis"
	"github.com/alanyoungcy/niftyarb/internal/config"
	"github.com/alanyoungcy/niftyarb/internal/discovery"
	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/extract"
	"github.com/alanyoungcy/niftyarb/internal/notify"
	"github.com/alanyoungcy/niftyarb/internal/oracle"
	"github.com/alanyoungcy/niftyarb/internal/pipeline"
	"github.com/alanyoungcy/niftyarb/internal/platform/coingecko"
	"github.com/alanyoungcy/niftyarb/internal/platform/opensea"
	"github.com/alanyoungcy/niftyarb/internal/ratelimit"
	"github.com/alanyoungcy/niftyarb/internal/resolve"
	"github.com/alanyoungcy/niftyarb/internal/retry"
	"github.com/alanyoungcy/niftyarb/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Pipeline is the scan orchestrator. Nil in export mode, which only reads
	// previously persisted runs.
	Pipeline *pipeline.Orchestrator

	// Stores are set when Postgres is enabled.
	Runs  domain.RunStore
	Items domain.ItemStore

	// Notifier dispatches alerts; nil when no channel is configured.
	Notifier *notify.Notifier
}

// needsBrowser returns true for modes that drive a headless Chrome session.
func needsBrowser(mode string) bool {
	return mode == "scan" || mode == "watch"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (shared caches and cross-instance rate limiting) ---
	var redisClient *rediscache.Client
	if cfg.Redis.Enabled {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		redisClient = rc
	}

	// --- PostgreSQL (run history and item persistence) ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Runs = postgres.NewRunStore(pool)
		deps.Items = postgres.NewItemStore(pool)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// Export mode reads persisted runs only; no browser or API clients.
	if !needsBrowser(cfg.Mode) {
		return deps, cleanup, nil
	}

	// --- OpenSea client with rate limiting and retries ---
	osClient := opensea.NewClient(cfg.OpenSea.BaseURL, cfg.OpenSea.APIKey)

	var limiter domain.RateLimiter
	if cfg.Redis.SharedRateLimit && redisClient != nil {
		limiter = rediscache.NewRateLimiter(redisClient, int(cfg.OpenSea.RatePerSecond), time.Second)
	} else {
		limiter = ratelimit.New(cfg.OpenSea.RatePerSecond)
	}
	policy := retry.New(cfg.OpenSea.MaxRetries, cfg.OpenSea.RetryDelay.Duration,
		cfg.OpenSea.RateCooldown.Duration, logger)

	// --- ETH/USD oracle ---
	gecko := coingecko.NewClient(cfg.Oracle.BaseURL)
	orc := oracle.New(gecko, cfg.Oracle.CacheTTL.Duration, cfg.Oracle.FallbackRate, logger)
	if redisClient != nil {
		orc = orc.WithCache(ctx, rediscache.NewRateCache(redisClient))
	}

	// --- Resolvers ---
	var identityCache domain.IdentityCache
	if redisClient != nil {
		identityCache = rediscache.NewIdentityCache(redisClient)
	}
	identities := resolve.NewIdentityResolver(osClient, limiter, policy, identityCache, logger)
	offers := resolve.NewOfferResolver(osClient, limiter, policy, orc, logger)

	// --- Browser session, discovery, and extraction ---
	session, err := browser.NewSession(ctx, cfg.Browser.DevtoolsURL, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: browser: %w", err)
	}
	closers = append(closers, func() { _ = session.Close() })

	discoverer := discovery.New(session, cfg.Nifty.CollectionSelector,
		cfg.Discovery.Strikes, cfg.Discovery.MaxRounds, logger)
	extractor := extract.New(session, logger)

	// --- Object storage archival ---
	sinks := pipeline.Sinks{Runs: deps.Runs, Items: deps.Items}
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		sinks.Archiver = s3blob.NewRunArchiver(s3blob.NewWriter(s3Client), logger)
	}

	deps.Pipeline = pipeline.NewOrchestrator(pipeline.Config{
		StartURL:     cfg.Nifty.StartURL,
		MaxItems:     cfg.Scan.MaxItems,
		RequireOffer: cfg.Scan.RequireOffer,
	}, discoverer, extractor, identities, offers, deps.Notifier, sinks, logger)

	return deps, cleanup, nil
}
