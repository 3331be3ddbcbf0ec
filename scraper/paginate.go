package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-play/extract"
	"github.com/aluiziolira/go-scrape-play/models"
	"github.com/aluiziolira/go-scrape-play/parser"
)

// Pager replays the storefront's incremental loading for one list page.
// It loads the seed page on the first call to Next and one continuation
// per later call, in load order. A Pager cannot be restarted.
//
//	p := s.Search("maps")
//	for p.Next(ctx) {
//		handle(p.Page())
//	}
//	if err := p.Err(); err != nil { ... }
type Pager struct {
	s      *Scraper
	seed   string
	locale Query

	started bool
	done    bool
	page    []any
	token   string
	err     error
}

func (s *Scraper) newPager(seed string) *Pager {
	return &Pager{s: s, seed: seed, locale: s.locale()}
}

// emptyPager is returned for lists that turned out not to exist.
func emptyPager() *Pager {
	return &Pager{started: true, done: true}
}

// Next loads the next page. It returns false once the list is exhausted,
// a continuation fails, or the seed page could not be loaded; only the
// last case is reported by Err.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done {
		return false
	}
	if !p.started {
		p.started = true
		return p.loadSeed(ctx)
	}
	if p.token == "" {
		p.finish()
		return false
	}
	return p.loadContinuation(ctx)
}

func (p *Pager) loadSeed(ctx context.Context) bool {
	body, err := p.s.fetcher.Get(ctx, p.seed)
	if err != nil {
		p.err = fmt.Errorf("load %s: %w", p.seed, err)
		p.finish()
		return false
	}
	m := parser.Parse(body)
	if len(m) == 0 {
		p.err = fmt.Errorf("load %s: %w", p.seed, ErrEmptyResponse)
		p.finish()
		return false
	}

	apps, _ := extract.Cluster.Extract(m, "apps")
	p.page, _ = apps.([]any)
	p.token, _ = extract.Cluster.ExtractString(m, "token")
	p.s.Metrics.IncPages()
	return true
}

func (p *Pager) loadContinuation(ctx context.Context) bool {
	resp, err := p.s.batch(ctx, BatchToken, p.token, p.locale)
	if err != nil {
		slog.Debug("pagination stopped",
			slog.String("seed", p.seed),
			slog.String("category", errorTypeLabel(err)),
			slog.Any("error", err),
		)
		p.finish()
		return false
	}

	apps, ok := parser.LookupSlice(resp, extract.BatchAppsPath...)
	if !ok {
		p.finish()
		return false
	}
	// An empty page may still carry a token; only a repeated token ends the list.
	previous := p.token
	p.page = apps
	p.token, _ = parser.LookupString(resp, extract.BatchTokenPath...)
	if p.token == previous {
		p.token = ""
	}
	p.s.Metrics.IncPages()
	return true
}

func (p *Pager) finish() {
	p.done = true
	p.page = nil
	p.token = ""
}

// Page returns the entries of the page loaded by the last call to Next.
func (p *Pager) Page() []any {
	return p.page
}

// Token returns the continuation token of the current page, or "" when
// no further page exists.
func (p *Pager) Token() string {
	return p.token
}

// Err returns the seed page error, if any.
func (p *Pager) Err() error {
	return p.err
}

// Entries drains the pager and returns every raw list entry in load order.
func (p *Pager) Entries(ctx context.Context) ([]any, error) {
	var all []any
	for p.Next(ctx) {
		all = append(all, p.Page()...)
	}
	return all, p.Err()
}

// IDs drains the pager and returns the application identifiers.
func (p *Pager) IDs(ctx context.Context) ([]string, error) {
	entries, err := p.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return extract.AppIDs(entries), nil
}

// Items drains the pager and returns one summary record per entry.
func (p *Pager) Items(ctx context.Context) ([]models.Record, error) {
	entries, err := p.Entries(ctx)
	if err != nil {
		return nil, err
	}
	base := ""
	if p.s != nil {
		base = p.s.cfg.BaseURL
	}
	items := make([]models.Record, 0, len(entries))
	for _, e := range entries {
		items = append(items, extract.ListItem(base, e))
	}
	return items, nil
}

// batch posts one batch request. The storefront sometimes answers with a
// retry marker before real data; the same request is repeated up to
// cfg.BatchAttempts times in total.
func (s *Scraper) batch(ctx context.Context, kind BatchKind, param string, locale Query) (any, error) {
	target, err := s.endpoints.URL(KindBatch, locale)
	if err != nil {
		return nil, err
	}
	body, err := BatchBody(kind, param)
	if err != nil {
		return nil, err
	}

	attempts := s.cfg.BatchAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		resp, err := s.fetcher.Post(ctx, target, body)
		if err != nil {
			return nil, err
		}
		if !parser.HasRetryMarker(resp) {
			return parser.ParseBatch(resp)
		}
		if attempt >= attempts {
			s.Metrics.IncError(errorTypeLabel(ErrRetryExhausted))
			return nil, fmt.Errorf("%d attempts: %w", attempts, ErrRetryExhausted)
		}
		s.Metrics.IncRetries()
		slog.Debug("batch retry marker",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)
	}
}
