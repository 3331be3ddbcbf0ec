package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	langPattern    = regexp.MustCompile(`^[a-z]{2,3}([_-][A-Za-z]{2,4})?$`)
	countryPattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// RateLimit is a sliding-window budget: at most Calls admissions per Period.
type RateLimit struct {
	Calls  int           `yaml:"calls"`
	Period time.Duration `yaml:"period"`
}

// Enabled reports whether the limit constrains anything.
func (r RateLimit) Enabled() bool {
	return r.Calls > 0 && r.Period > 0
}

// Config holds scraper and crawl configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	Lang             string        `yaml:"lang"`
	Country          string        `yaml:"country"`
	Proxy            string        `yaml:"proxy"` // host:port, applied to every request
	Timeout          time.Duration `yaml:"timeout"`
	UserAgent        string        `yaml:"user_agent"`
	Parallelism      int           `yaml:"parallelism"`
	MaxBodySize      int           `yaml:"max_body_size"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`

	RateLimit     RateLimit `yaml:"rate_limit"`
	BatchAttempts int       `yaml:"batch_attempts"`

	Workers           int           `yaml:"workers"`
	CrawlRateLimit    RateLimit     `yaml:"crawl_rate_limit"`
	Shuffle           bool          `yaml:"shuffle"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
	LocationEvery     int           `yaml:"location_every"`

	OutputDir          string `yaml:"output_dir"`
	OutputFormat       string `yaml:"output_format"` // csv, json, or dual
	FullMetadata       bool   `yaml:"full_metadata"`
	PipelineBufferSize int    `yaml:"pipeline_buffer_size"`
	BatchSize          int    `yaml:"batch_size"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults for the public storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://play.google.com",
		Timeout:     30 * time.Second,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Parallelism: 16,
		MaxBodySize: 0,
		RateLimit: RateLimit{
			Calls:  5,
			Period: time.Second,
		},
		BatchAttempts:      5,
		Workers:            10,
		RateLimitCooldown:  30 * time.Second,
		LocationEvery:      50,
		OutputDir:          "out",
		OutputFormat:       "csv",
		PipelineBufferSize: 512,
		BatchSize:          1,
		DedupeMaxSize:      100_000,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Lang != "" && !langPattern.MatchString(c.Lang) {
		return fmt.Errorf("invalid language code %q", c.Lang)
	}
	if c.Country != "" && !countryPattern.MatchString(c.Country) {
		return fmt.Errorf("invalid country code %q", c.Country)
	}
	if c.Proxy != "" {
		if _, _, err := net.SplitHostPort(c.Proxy); err != nil {
			return fmt.Errorf("proxy must be host:port: %w", err)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if !c.RateLimit.Enabled() {
		return fmt.Errorf("rate limit needs positive calls and period")
	}
	if c.BatchAttempts <= 0 {
		return fmt.Errorf("batch attempts must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.CrawlRateLimit.Calls < 0 || c.CrawlRateLimit.Period < 0 {
		return fmt.Errorf("crawl rate limit cannot be negative")
	}
	if c.RateLimitCooldown < 0 {
		return fmt.Errorf("rate limit cooldown cannot be negative")
	}
	if c.LocationEvery < 0 {
		return fmt.Errorf("location probe interval cannot be negative")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

// ProxyURL returns the proxy as an http URL, or nil when no proxy is set.
func (c *Config) ProxyURL() *url.URL {
	if c.Proxy == "" {
		return nil
	}
	return &url.URL{Scheme: "http", Host: c.Proxy}
}

// EnvInt reads an integer from the environment. ok is false when the
// variable is unset or blank.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvString reads a trimmed, non-empty string from the environment.
func EnvString(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}

// ApplyEnv overlays PLAYCRAWLER_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("PLAYCRAWLER_PROXY"); ok {
		c.Proxy = value
	}
	if value, ok := EnvString("PLAYCRAWLER_LANG"); ok {
		c.Lang = value
	}
	if value, ok := EnvString("PLAYCRAWLER_COUNTRY"); ok {
		c.Country = value
	}
	if value, ok := EnvString("PLAYCRAWLER_OUTPUT_DIR"); ok {
		c.OutputDir = value
	}
	if value, ok := EnvString("PLAYCRAWLER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok, err := EnvInt("PLAYCRAWLER_WORKERS"); err != nil {
		return err
	} else if ok {
		c.Workers = value
	}
	if value, ok, err := EnvInt("PLAYCRAWLER_RATE_CALLS"); err != nil {
		return err
	} else if ok {
		c.RateLimit.Calls = value
	}
	return nil
}
