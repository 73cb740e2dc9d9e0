// Package config defines the top-level configuration for the marketplace
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NIFTYARB_* environment variables.
type Config struct {
	Nifty     NiftyConfig     `toml:"nifty"`
	Browser   BrowserConfig   `toml:"browser"`
	Discovery DiscoveryConfig `toml:"discovery"`
	OpenSea   OpenSeaConfig   `toml:"opensea"`
	Oracle    OracleConfig    `toml:"oracle"`
	Scan      ScanConfig      `toml:"scan"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// NiftyConfig holds the marketplace crawl target.
type NiftyConfig struct {
	// StartURL is the marketplace listing page discovery begins from.
	StartURL string `toml:"start_url"`
	// CollectionSelector matches the anchors whose hrefs point at collections.
	CollectionSelector string `toml:"collection_selector"`
}

// BrowserConfig holds the headless Chrome connection parameters.
type BrowserConfig struct {
	// DevtoolsURL is the DevTools HTTP root of a running Chrome instance.
	DevtoolsURL string `toml:"devtools_url"`
}

// DiscoveryConfig holds the crawl convergence knobs.
type DiscoveryConfig struct {
	// Strikes is the number of consecutive zero-growth rounds that count as
	// convergence.
	Strikes int `toml:"strikes"`
	// MaxRounds caps the number of advance rounds per discovery pass.
	MaxRounds int `toml:"max_rounds"`
}

// OpenSeaConfig holds OpenSea API parameters and the retry policy applied to
// its lookups.
type OpenSeaConfig struct {
	BaseURL       string   `toml:"base_url"`
	APIKey        string   `toml:"api_key"`
	RatePerSecond float64  `toml:"rate_per_second"`
	MaxRetries    int      `toml:"max_retries"`
	RetryDelay    duration `toml:"retry_delay"`
	RateCooldown  duration `toml:"rate_cooldown"`
}

// OracleConfig holds the ETH/USD rate source parameters.
type OracleConfig struct {
	BaseURL      string   `toml:"base_url"`
	CacheTTL     duration `toml:"cache_ttl"`
	FallbackRate float64  `toml:"fallback_rate"`
}

// ScanConfig holds per-scan behavior knobs.
type ScanConfig struct {
	// MaxItems caps how many collections one scan admits; 0 means no cap.
	MaxItems int `toml:"max_items"`
	// RequireOffer drops items without a standing offer from the results.
	RequireOffer bool `toml:"require_offer"`
	// WatchInterval is the pause between sweeps in watch mode.
	WatchInterval duration `toml:"watch_interval"`
	// ExportDir is where local CSV/JSON artifacts are written.
	ExportDir string `toml:"export_dir"`
	// ExportFormats selects the artifact formats ("csv", "json").
	ExportFormats []string `toml:"export_formats"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// SharedRateLimit uses a Redis sliding window instead of the in-process
	// limiter so multiple scanner instances share one API budget.
	SharedRateLimit bool `toml:"shared_rate_limit"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Nifty: NiftyConfig{
			StartURL:           "https://www.niftygateway.com/marketplace",
			CollectionSelector: "a[href*='/marketplace/collection/'], a[href*='/marketplace/collectible/']",
		},
		Browser: BrowserConfig{
			DevtoolsURL: "http://127.0.0.1:9222",
		},
		Discovery: DiscoveryConfig{
			Strikes:   3,
			MaxRounds: 50,
		},
		OpenSea: OpenSeaConfig{
			BaseURL:       "https://api.opensea.io",
			RatePerSecond: 4.0,
			MaxRetries:    3,
			RetryDelay:    duration{3 * time.Second},
			RateCooldown:  duration{3 * time.Second},
		},
		Oracle: OracleConfig{
			BaseURL:      "https://api.coingecko.com",
			CacheTTL:     duration{time.Minute},
			FallbackRate: 3550,
		},
		Scan: ScanConfig{
			MaxItems:      0,
			RequireOffer:  false,
			WatchInterval: duration{10 * time.Minute},
			ExportDir:     "./exports",
			ExportFormats: []string{"csv", "json"},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "niftyarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "niftyarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "run_summary", "error"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"watch":  true,
	"export": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validExportFormats enumerates the accepted artifact formats.
var validExportFormats = map[string]bool{
	"csv":  true,
	"json": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, watch, export)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Crawl target, needed by the scanning modes.
	needsCrawl := c.Mode == "scan" || c.Mode == "watch"
	if needsCrawl {
		if c.Nifty.StartURL == "" {
			errs = append(errs, "nifty: start_url is required for mode "+c.Mode)
		}
		if c.Nifty.CollectionSelector == "" {
			errs = append(errs, "nifty: collection_selector must not be empty")
		}
		if c.Browser.DevtoolsURL == "" {
			errs = append(errs, "browser: devtools_url is required for mode "+c.Mode)
		}
	}

	if c.Discovery.Strikes <= 0 {
		errs = append(errs, fmt.Sprintf("discovery: strikes must be positive, got %d", c.Discovery.Strikes))
	}
	if c.Discovery.MaxRounds <= 0 {
		errs = append(errs, fmt.Sprintf("discovery: max_rounds must be positive, got %d", c.Discovery.MaxRounds))
	}
	if c.Discovery.MaxRounds < c.Discovery.Strikes {
		errs = append(errs, "discovery: max_rounds must be at least strikes, or the pass can never converge")
	}

	if c.OpenSea.BaseURL == "" {
		errs = append(errs, "opensea: base_url must not be empty")
	}
	if c.OpenSea.RatePerSecond < 0 {
		errs = append(errs, fmt.Sprintf("opensea: rate_per_second must not be negative, got %g", c.OpenSea.RatePerSecond))
	}
	if c.OpenSea.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("opensea: max_retries must not be negative, got %d", c.OpenSea.MaxRetries))
	}

	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.CacheTTL.Duration <= 0 {
		errs = append(errs, "oracle: cache_ttl must be positive")
	}
	if c.Oracle.FallbackRate <= 0 {
		errs = append(errs, fmt.Sprintf("oracle: fallback_rate must be positive, got %g", c.Oracle.FallbackRate))
	}

	if c.Scan.MaxItems < 0 {
		errs = append(errs, fmt.Sprintf("scan: max_items must not be negative, got %d", c.Scan.MaxItems))
	}
	if c.Mode == "watch" && c.Scan.WatchInterval.Duration <= 0 {
		errs = append(errs, "scan: watch_interval must be positive for mode watch")
	}
	for _, f := range c.Scan.ExportFormats {
		if !validExportFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Sprintf("scan: unknown export format %q (valid: csv, json)", f))
		}
	}

	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
			errs = append(errs, "postgres: either dsn or host/database/user must be set when enabled")
		}
	}
	if c.Mode == "export" && !c.Postgres.Enabled {
		errs = append(errs, "postgres: must be enabled for mode export, it reads the last persisted run")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must be set when enabled")
	}
	if c.Redis.SharedRateLimit && !c.Redis.Enabled {
		errs = append(errs, "redis: shared_rate_limit requires redis to be enabled")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must be set when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must be set when enabled")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
