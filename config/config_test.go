package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "proxy without port",
			mutate: func(cfg *Config) {
				cfg.Proxy = "10.0.0.1"
			},
			wantErr: "proxy",
		},
		{
			name: "malformed country",
			mutate: func(cfg *Config) {
				cfg.Country = "u s"
			},
			wantErr: "country",
		},
		{
			name: "malformed language",
			mutate: func(cfg *Config) {
				cfg.Lang = "&hl=en"
			},
			wantErr: "language",
		},
		{
			name: "zero rate limit",
			mutate: func(cfg *Config) {
				cfg.RateLimit.Calls = 0
			},
			wantErr: "rate limit",
		},
		{
			name: "zero workers",
			mutate: func(cfg *Config) {
				cfg.Workers = 0
			},
			wantErr: "workers",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.RateLimit.Calls != 5 || cfg.RateLimit.Period != time.Second {
		t.Fatalf("default rate limit = %+v, want 5 per 1s", cfg.RateLimit)
	}
	if cfg.CrawlRateLimit.Enabled() {
		t.Fatalf("crawl rate limit should be disabled by default")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.yaml")
	body := `
country: de
proxy: 127.0.0.1:8080
workers: 4
rate_limit:
  calls: 2
  period: 3s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Country != "de" || cfg.Workers != 4 {
		t.Fatalf("unexpected overlay: country=%q workers=%d", cfg.Country, cfg.Workers)
	}
	if cfg.RateLimit.Calls != 2 || cfg.RateLimit.Period != 3*time.Second {
		t.Fatalf("rate limit = %+v, want 2 per 3s", cfg.RateLimit)
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Fatalf("base url should keep its default, got %q", cfg.BaseURL)
	}
	if got := cfg.ProxyURL(); got == nil || got.Host != "127.0.0.1:8080" {
		t.Fatalf("proxy url = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PLAYCRAWLER_WORKERS", " 7 ")
	t.Setenv("PLAYCRAWLER_COUNTRY", "fr")
	t.Setenv("PLAYCRAWLER_BLANK", "   ")

	if _, ok := EnvString("PLAYCRAWLER_BLANK"); ok {
		t.Fatalf("blank variable should be treated as unset")
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Workers != 7 || cfg.Country != "fr" {
		t.Fatalf("env not applied: workers=%d country=%q", cfg.Workers, cfg.Country)
	}

	t.Setenv("PLAYCRAWLER_WORKERS", "many")
	if _, _, err := EnvInt("PLAYCRAWLER_WORKERS"); err == nil {
		t.Fatalf("expected parse error for non-numeric value")
	}
}
