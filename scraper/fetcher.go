package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-play/config"
)

// Fetcher issues rate-limited GET and POST requests and maps failures onto
// the scraper error types. It never retries.
type Fetcher struct {
	collector *colly.Collector
	limiter   *RateLimiter
	metrics   *Metrics
}

// NewFetcher builds a fetcher for the host of cfg.BaseURL. Every request
// goes through limiter and, when configured, through cfg.Proxy.
func NewFetcher(cfg *config.Config, limiter *RateLimiter, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	opts := []colly.CollectorOption{
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}
	collector := colly.NewCollector(opts...)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt

	proxy := http.ProxyFromEnvironment
	if proxyURL := cfg.ProxyURL(); proxyURL != nil {
		proxy = http.ProxyURL(proxyURL)
	}
	collector.WithTransport(&http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure parallelism: %w", err)
	}

	return &Fetcher{
		collector: collector,
		limiter:   limiter,
		metrics:   metrics,
	}, nil
}

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Get fetches target and returns the decoded body.
func (f *Fetcher) Get(ctx context.Context, target string) (string, error) {
	return f.do(ctx, http.MethodGet, target, "")
}

// Post sends a form-encoded body to target and returns the decoded body.
func (f *Fetcher) Post(ctx context.Context, target, body string) (string, error) {
	return f.do(ctx, http.MethodPost, target, body)
}

// do runs one request. colly has no context support, so ctx is honoured
// up to the moment the request leaves; the collector timeout bounds the rest.
func (f *Fetcher) do(ctx context.Context, method, target, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	c := f.collector.Clone()
	var (
		status int
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	hdr := http.Header{}
	hdr.Set("User-Agent", c.UserAgent)
	var reader io.Reader
	if method == http.MethodPost {
		hdr.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
		reader = strings.NewReader(payload)
	}

	f.metrics.IncRequest(strings.ToLower(method))
	start := time.Now()
	err := c.Request(method, target, reader, nil, hdr)
	f.metrics.ObserveDuration(time.Since(start))

	if err == nil && status == 0 {
		err = fmt.Errorf("no response received")
	}
	if classified := classifyError(err, status); classified != nil {
		label := errorTypeLabel(classified)
		f.metrics.IncError(label)
		slog.Debug("fetch failed",
			slog.String("method", method),
			slog.String("url", target),
			slog.String("category", label),
			slog.Any("error", classified),
		)
		return "", classified
	}
	return string(body), nil
}
