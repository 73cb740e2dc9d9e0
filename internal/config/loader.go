package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NIFTYARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NIFTYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Nifty ──
	setStr(&cfg.Nifty.StartURL, "NIFTYARB_NIFTY_START_URL")
	setStr(&cfg.Nifty.CollectionSelector, "NIFTYARB_NIFTY_COLLECTION_SELECTOR")

	// ── Browser ──
	setStr(&cfg.Browser.DevtoolsURL, "NIFTYARB_BROWSER_DEVTOOLS_URL")

	// ── Discovery ──
	setInt(&cfg.Discovery.Strikes, "NIFTYARB_DISCOVERY_STRIKES")
	setInt(&cfg.Discovery.MaxRounds, "NIFTYARB_DISCOVERY_MAX_ROUNDS")

	// ── OpenSea ──
	setStr(&cfg.OpenSea.BaseURL, "NIFTYARB_OPENSEA_BASE_URL")
	setStr(&cfg.OpenSea.APIKey, "NIFTYARB_OPENSEA_API_KEY")
	setFloat64(&cfg.OpenSea.RatePerSecond, "NIFTYARB_OPENSEA_RATE_PER_SECOND")
	setInt(&cfg.OpenSea.MaxRetries, "NIFTYARB_OPENSEA_MAX_RETRIES")
	setDuration(&cfg.OpenSea.RetryDelay, "NIFTYARB_OPENSEA_RETRY_DELAY")
	setDuration(&cfg.OpenSea.RateCooldown, "NIFTYARB_OPENSEA_RATE_COOLDOWN")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "NIFTYARB_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.CacheTTL, "NIFTYARB_ORACLE_CACHE_TTL")
	setFloat64(&cfg.Oracle.FallbackRate, "NIFTYARB_ORACLE_FALLBACK_RATE")

	// ── Scan ──
	setInt(&cfg.Scan.MaxItems, "NIFTYARB_SCAN_MAX_ITEMS")
	setBool(&cfg.Scan.RequireOffer, "NIFTYARB_SCAN_REQUIRE_OFFER")
	setDuration(&cfg.Scan.WatchInterval, "NIFTYARB_SCAN_WATCH_INTERVAL")
	setStr(&cfg.Scan.ExportDir, "NIFTYARB_SCAN_EXPORT_DIR")
	setStringSlice(&cfg.Scan.ExportFormats, "NIFTYARB_SCAN_EXPORT_FORMATS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "NIFTYARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "NIFTYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NIFTYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NIFTYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NIFTYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NIFTYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NIFTYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NIFTYARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NIFTYARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NIFTYARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NIFTYARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "NIFTYARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "NIFTYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NIFTYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NIFTYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NIFTYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NIFTYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NIFTYARB_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.SharedRateLimit, "NIFTYARB_REDIS_SHARED_RATE_LIMIT")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "NIFTYARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "NIFTYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NIFTYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "NIFTYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NIFTYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NIFTYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NIFTYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NIFTYARB_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NIFTYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NIFTYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NIFTYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NIFTYARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "NIFTYARB_MODE")
	setStr(&cfg.LogLevel, "NIFTYARB_LOG_LEVEL")
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
