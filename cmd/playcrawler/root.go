package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-play/config"
	"github.com/aluiziolira/go-scrape-play/scraper"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playcrawler",
		Short: "Storefront scraping client and crawl orchestrator",
		Long: `playcrawler queries the public application storefront for details, list
pages, permissions and the site location, and crawls identifier lists with a
worker pool that retries, classifies failures and resumes from its logs.

Configuration is read from the YAML file given with --config, then from
PLAYCRAWLER_* environment variables, then from command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaults := config.DefaultConfig()
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.String("base-url", defaults.BaseURL, "Storefront base URL")
	flags.StringP("lang", "l", "", "Language code (e.g. en, pt_BR)")
	flags.StringP("country", "g", "", "Country code (e.g. us)")
	flags.StringP("proxy", "p", "", "Proxy as host:port")
	flags.Int("rate-calls", defaults.RateLimit.Calls, "Requests admitted per rate period")
	flags.Duration("rate-period", defaults.RateLimit.Period, "Rate limit window")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewMetadataCmd())
	cmd.AddCommand(NewDownloadCmd())
	cmd.AddCommand(NewAppListCmd())
	cmd.AddCommand(newQueryCmds()...)

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers the config file, the environment and the flags that
// were set explicitly, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("lang") {
		cfg.Lang, _ = flags.GetString("lang")
	}
	if flags.Changed("country") {
		cfg.Country, _ = flags.GetString("country")
	}
	if flags.Changed("proxy") {
		cfg.Proxy, _ = flags.GetString("proxy")
	}
	if flags.Changed("rate-calls") {
		cfg.RateLimit.Calls, _ = flags.GetInt("rate-calls")
	}
	if flags.Changed("rate-period") {
		cfg.RateLimit.Period, _ = flags.GetDuration("rate-period")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}

	// Crawl flags, only defined on the crawl commands.
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("format") {
		format, _ := flags.GetString("format")
		cfg.OutputFormat = strings.ToLower(format)
	}
	if flags.Changed("full") {
		cfg.FullMetadata, _ = flags.GetBool("full")
	}
	if flags.Changed("shuffle") {
		cfg.Shuffle, _ = flags.GetBool("shuffle")
	}
	if flags.Changed("crawl-rate-calls") {
		cfg.CrawlRateLimit.Calls, _ = flags.GetInt("crawl-rate-calls")
	}
	if flags.Changed("crawl-rate-period") {
		cfg.CrawlRateLimit.Period, _ = flags.GetDuration("crawl-rate-period")
	}
	if flags.Changed("cooldown") {
		cfg.RateLimitCooldown, _ = flags.GetDuration("cooldown")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func addCrawlFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	flags := cmd.Flags()
	flags.IntP("workers", "t", defaults.Workers, "Number of crawl workers")
	flags.StringP("output-dir", "o", defaults.OutputDir, "Root directory for run output")
	flags.Bool("shuffle", false, "Shuffle the identifier order")
	flags.Int("crawl-rate-calls", 0, "Items started per crawl rate period (0 disables)")
	flags.Duration("crawl-rate-period", time.Second, "Crawl rate limit window")
	flags.Duration("cooldown", defaults.RateLimitCooldown, "Pause after a rate-limit failure")
}

// app bundles what every command needs once configuration is resolved.
type app struct {
	cfg     *config.Config
	scraper *scraper.Scraper
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, level := newLogger(cfg.Verbose, os.Stderr)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialising scraper: %w", err)
	}
	return &app{cfg: cfg, scraper: s}, nil
}

// logToFile duplicates the log stream into path until the returned
// function is called.
func (a *app) logToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	previous := slog.Default()
	logger, _ := newLogger(a.cfg.Verbose, io.MultiWriter(os.Stderr, f))
	slog.SetDefault(logger)
	return func() {
		slog.SetDefault(previous)
		f.Close()
	}, nil
}

// serveMetrics exposes reg on cfg.MetricsAddr. The returned function shuts
// the server down; it is a no-op when no address is configured.
func (a *app) serveMetrics(reg *prometheus.Registry) func() {
	if a.cfg.MetricsAddr == "" || reg == nil {
		return func() {}
	}
	server := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", a.cfg.MetricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
