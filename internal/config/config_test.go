package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate(): %v", err)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Errorf("err = %v, want unknown mode", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Discovery.Strikes = 0
	cfg.Oracle.FallbackRate = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "strikes", "fallback_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateExportNeedsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "export"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Errorf("err = %v, want postgres requirement", err)
	}

	cfg.Postgres.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with postgres enabled: %v", err)
	}
}

func TestValidateSharedRateLimitNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.SharedRateLimit = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "shared_rate_limit") {
		t.Errorf("err = %v, want shared_rate_limit requirement", err)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "watch"

[opensea]
api_key = "from-file"
rate_per_second = 2.0

[scan]
watch_interval = "5m"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NIFTYARB_OPENSEA_API_KEY", "from-env")
	t.Setenv("NIFTYARB_DISCOVERY_STRIKES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "watch" {
		t.Errorf("mode = %q, want watch", cfg.Mode)
	}
	if cfg.OpenSea.APIKey != "from-env" {
		t.Errorf("api_key = %q, env must override file", cfg.OpenSea.APIKey)
	}
	if cfg.OpenSea.RatePerSecond != 2.0 {
		t.Errorf("rate_per_second = %v, want 2.0 from file", cfg.OpenSea.RatePerSecond)
	}
	if cfg.Discovery.Strikes != 5 {
		t.Errorf("strikes = %d, want 5 from env", cfg.Discovery.Strikes)
	}
	if cfg.Scan.WatchInterval.Duration != 5*time.Minute {
		t.Errorf("watch_interval = %v, want 5m", cfg.Scan.WatchInterval.Duration)
	}
	// Untouched field keeps its default.
	if cfg.OpenSea.BaseURL != "https://api.opensea.io" {
		t.Errorf("base_url = %q, want default", cfg.OpenSea.BaseURL)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.OpenSea.APIKey = "secret-key"
	cfg.Postgres.Password = "db-pass"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := RedactedConfig(&cfg)
	if red.OpenSea.APIKey != "***" || red.Postgres.Password != "***" || red.Notify.DiscordWebhookURL != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	// Original untouched.
	if cfg.OpenSea.APIKey != "secret-key" {
		t.Error("redaction mutated the source config")
	}
	// Empty secrets stay empty.
	if red.Redis.Password != "" {
		t.Errorf("empty secret became %q", red.Redis.Password)
	}
}
