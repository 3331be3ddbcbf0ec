// Package crawler drives a task over a list of application identifiers with
// a fixed worker pool, classified retries and a resumable log.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-play/config"
	"github.com/aluiziolira/go-scrape-play/models"
	"github.com/aluiziolira/go-scrape-play/pipeline"
	"github.com/aluiziolira/go-scrape-play/scraper"
)

// Task performs the work for one identifier.
type Task interface {
	Run(ctx context.Context, appID string) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, appID string) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, appID string) error {
	return f(ctx, appID)
}

// Locator reports the storefront location seen by the crawler.
type Locator interface {
	Location(ctx context.Context) (location, language string, err error)
}

// Options wires a Crawler.
type Options struct {
	Task Task
	// Dir receives finished.txt, failure.txt and transient.txt.
	Dir string
	// Locator is probed every cfg.LocationEvery items when set.
	Locator Locator
	Metrics *Metrics
}

// Crawler runs a Task over identifiers.
type Crawler struct {
	cfg     *config.Config
	task    Task
	dir     string
	locator Locator
	metrics *Metrics
	limiter *scraper.RateLimiter

	sleep    func(context.Context, time.Duration) error
	progress *rate.Sometimes

	mu     sync.Mutex
	result *models.CrawlResult

	dispatched atomic.Int64
}

// New builds a crawler.
func New(cfg *config.Config, opts Options) (*Crawler, error) {
	if opts.Task == nil {
		return nil, fmt.Errorf("crawler: task is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("crawler: output directory is required")
	}
	return &Crawler{
		cfg:      cfg,
		task:     opts.Task,
		dir:      opts.Dir,
		locator:  opts.Locator,
		metrics:  opts.Metrics,
		limiter:  scraper.NewRateLimiter(cfg.CrawlRateLimit.Calls, cfg.CrawlRateLimit.Period),
		sleep:    sleepContext,
		progress: &rate.Sometimes{Interval: 10 * time.Second},
	}, nil
}

type outputs struct {
	finished  *pipeline.LineWriter
	failure   *pipeline.LineWriter
	transient *pipeline.LineWriter
}

func openOutputs(dir string) (*outputs, error) {
	var out outputs
	var err error
	if out.finished, err = pipeline.NewLineWriter(filepath.Join(dir, FinishedFile)); err != nil {
		return nil, err
	}
	if out.failure, err = pipeline.NewLineWriter(filepath.Join(dir, FailureFile)); err != nil {
		out.finished.Close()
		return nil, err
	}
	if out.transient, err = pipeline.NewLineWriter(filepath.Join(dir, TransientFile)); err != nil {
		out.finished.Close()
		out.failure.Close()
		return nil, err
	}
	return &out, nil
}

func (o *outputs) Close() error {
	return errors.Join(o.finished.Close(), o.failure.Close(), o.transient.Close())
}

// Plan filters and orders ids for a run: duplicates are dropped, and so are
// identifiers already recorded as finished or failed in dir.
func Plan(dir string, ids []string, shuffle bool) (queued []string, skipped int, err error) {
	finished, err := LoadFinished(filepath.Join(dir, FinishedFile))
	if err != nil {
		return nil, 0, err
	}
	failed, err := LoadFailed(filepath.Join(dir, FailureFile))
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		_, done := finished[id]
		_, bad := failed[id]
		if done || bad {
			skipped++
			continue
		}
		queued = append(queued, id)
	}
	if shuffle {
		rand.Shuffle(len(queued), func(i, j int) {
			queued[i], queued[j] = queued[j], queued[i]
		})
	}
	return queued, skipped, nil
}

// Run crawls ids until every item is finished, failed or abandoned, or ctx
// is cancelled. On cancellation no new item is started; items in flight
// complete and their outcome is recorded.
func (c *Crawler) Run(ctx context.Context, ids []string) (*models.CrawlResult, error) {
	c.result = &models.CrawlResult{
		StartTime:    time.Now(),
		InputCount:   len(ids),
		ErrorsByType: make(map[string]int),
	}

	queued, skipped, err := Plan(c.dir, ids, c.cfg.Shuffle)
	if err != nil {
		return nil, err
	}
	c.result.SkippedCount = skipped
	c.result.QueuedCount = len(queued)
	slog.Info("crawl planned",
		slog.Int("input", len(ids)),
		slog.Int("skipped", skipped),
		slog.Int("queued", len(queued)),
	)
	if len(queued) == 0 {
		c.result.EndTime = time.Now()
		return c.result, nil
	}

	out, err := openOutputs(c.dir)
	if err != nil {
		return nil, err
	}

	q := NewQueue()
	for _, id := range queued {
		q.Push(Item{ID: id})
	}

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return c.worker(gctx, q, out)
		})
	}
	runErr := g.Wait()
	q.Close()

	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}

	c.mu.Lock()
	c.result.EndTime = time.Now()
	result := c.result
	c.mu.Unlock()

	if ctx.Err() != nil {
		slog.Warn("crawl interrupted", slog.Int("pending", q.Live()))
	}
	slog.Info("crawl finished",
		slog.Int("finished", result.Finished),
		slog.Int("failed", result.Failed),
		slog.Int("abandoned", result.Abandoned),
		slog.Int("aborted", result.Aborted),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result, runErr
}

func (c *Crawler) worker(ctx context.Context, q *Queue, out *outputs) error {
	for {
		item, ok := q.Pop(ctx)
		if !ok {
			return nil
		}
		if err := c.process(ctx, q, out, item); err != nil {
			q.Close()
			return err
		}
		c.progress.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			slog.Info("crawl progress",
				slog.Int("finished", c.result.Finished),
				slog.Int("failed", c.result.Failed),
				slog.Int("retries", c.result.RetryCount),
				slog.Int("live", q.Live()),
			)
		})
	}
}

// process runs one attempt of item. The returned error is fatal to the
// crawl (an output file could not be written).
func (c *Crawler) process(ctx context.Context, q *Queue, out *outputs, item Item) error {
	if n := c.dispatched.Add(1) - 1; c.locator != nil && c.cfg.LocationEvery > 0 && n%int64(c.cfg.LocationEvery) == 0 {
		c.probeLocation(ctx)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.record(func(r *models.CrawlResult) { r.Aborted++ })
		q.Done(item.ID)
		return nil
	}

	c.metrics.track(1)
	err := c.task.Run(context.WithoutCancel(ctx), item.ID)
	c.metrics.track(-1)

	if err == nil {
		if werr := out.finished.WriteLine(item.ID); werr != nil {
			return fmt.Errorf("record finished %s: %w", item.ID, werr)
		}
		slog.Info("item finished", slog.String("app_id", item.ID))
		c.record(func(r *models.CrawlResult) { r.Finished++ })
		c.metrics.outcome("finished")
		q.Done(item.ID)
		return nil
	}

	if reason := abortReason(err); reason != "" {
		slog.Error("item not retried",
			slog.String("app_id", item.ID),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		c.record(func(r *models.CrawlResult) {
			r.Aborted++
			r.ErrorsByType[reason]++
		})
		c.metrics.outcome("aborted")
		q.Done(item.ID)
		return nil
	}

	cls := Classify(err)
	c.record(func(r *models.CrawlResult) { r.ErrorsByType[cls.Code.String()]++ })
	c.metrics.failure(cls.Code)

	if !cls.Permanent() {
		slog.Warn("transient failure",
			slog.String("app_id", item.ID),
			slog.String("class", cls.Code.String()),
			slog.Bool("retry", item.Retry),
			slog.String("error", cls.Message),
		)
		if werr := out.transient.WriteLine(item.ID + ": " + cls.Message); werr != nil {
			return fmt.Errorf("record transient %s: %w", item.ID, werr)
		}
	}
	if cls.Code == CodeRateLimit && c.cfg.RateLimitCooldown > 0 {
		slog.Warn("rate limit triggered, cooling down", slog.Duration("cooldown", c.cfg.RateLimitCooldown))
		_ = c.sleep(ctx, c.cfg.RateLimitCooldown)
	}

	if !item.Retry {
		if ctx.Err() == nil && q.Requeue(Item{ID: item.ID, Retry: true, Previous: &cls}) {
			c.record(func(r *models.CrawlResult) { r.RetryCount++ })
			c.metrics.retry()
			return nil
		}
		c.record(func(r *models.CrawlResult) { r.Aborted++ })
		c.metrics.outcome("aborted")
		q.Done(item.ID)
		return nil
	}

	var first Classification
	if item.Previous != nil {
		first = *item.Previous
	}
	final := finalFailure(first, cls)
	if final == nil {
		slog.Warn("item abandoned after two transient failures", slog.String("app_id", item.ID))
		c.record(func(r *models.CrawlResult) { r.Abandoned++ })
		c.metrics.outcome("abandoned")
		q.Done(item.ID)
		return nil
	}

	if werr := out.failure.WriteLine(item.ID + ": " + failureText(final.Message)); werr != nil {
		return fmt.Errorf("record failure %s: %w", item.ID, werr)
	}
	slog.Info("item failed",
		slog.String("app_id", item.ID),
		slog.String("class", final.Code.String()),
	)
	c.record(func(r *models.CrawlResult) { r.Failed++ })
	c.metrics.outcome("failed")
	q.Done(item.ID)
	return nil
}

func (c *Crawler) probeLocation(ctx context.Context) {
	location, language, err := c.locator.Location(ctx)
	if err != nil {
		slog.Warn("error getting site location", slog.Any("error", err))
		return
	}
	slog.Info("site location",
		slog.String("location", location),
		slog.String("language", language),
	)
}

func (c *Crawler) record(update func(*models.CrawlResult)) {
	c.mu.Lock()
	update(c.result)
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
