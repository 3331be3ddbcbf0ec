package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-scrape-play/config"
	"github.com/aluiziolira/go-scrape-play/extract"
	"github.com/aluiziolira/go-scrape-play/models"
	"github.com/aluiziolira/go-scrape-play/parser"
)

// Scraper queries the storefront: application details, list pages with
// pagination, permissions and the site location.
type Scraper struct {
	cfg       *config.Config
	fetcher   *Fetcher
	endpoints Endpoints
	Metrics   *Metrics
}

// NewScraper builds a scraper configured from cfg with its own rate
// limiter and metrics registry.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	return NewScraperWith(cfg, NewRateLimiter(cfg.RateLimit.Calls, cfg.RateLimit.Period), NewMetrics())
}

// NewScraperWith builds a scraper that shares limiter and metrics with
// other components. Either may be nil.
func NewScraperWith(cfg *config.Config, limiter *RateLimiter, metrics *Metrics) (*Scraper, error) {
	fetcher, err := NewFetcher(cfg, limiter, metrics)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:       cfg,
		fetcher:   fetcher,
		endpoints: Endpoints{Base: cfg.BaseURL},
		Metrics:   metrics,
	}, nil
}

// WithTransport replaces the HTTP transport of every request.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// Fetcher exposes the underlying fetcher.
func (s *Scraper) Fetcher() *Fetcher {
	return s.fetcher
}

func (s *Scraper) locale() Query {
	return Query{Lang: s.cfg.Lang, Country: s.cfg.Country}
}

func (s *Scraper) query(fn, id string) Query {
	q := s.locale()
	q.Func = fn
	q.ID = id
	return q
}

// detailsPage fetches and parses the details page of appID.
func (s *Scraper) detailsPage(ctx context.Context, appID string) (string, string, parser.DatasetMap, error) {
	target, err := s.endpoints.URL(KindDetails, s.query("details", appID))
	if err != nil {
		return "", "", nil, err
	}
	body, err := s.fetcher.Get(ctx, target)
	if err != nil {
		return "", "", nil, err
	}
	m := parser.Parse(body)
	if len(m) == 0 {
		return "", "", nil, fmt.Errorf("details %s: %w", appID, ErrEmptyResponse)
	}
	return target, body, m, nil
}

// Details returns the full record of one application.
func (s *Scraper) Details(ctx context.Context, appID string) (models.Record, error) {
	target, body, m, err := s.detailsPage(ctx, appID)
	if err != nil {
		return nil, err
	}
	rec := extract.Details(appID, target, m, parser.FindDownloadLink(body))
	s.Metrics.IncRecords()
	return rec, nil
}

// Similar returns a pager over the "similar apps" cluster of appID. An app
// without that cluster yields an empty pager.
func (s *Scraper) Similar(ctx context.Context, appID string) (*Pager, error) {
	_, _, m, err := s.detailsPage(ctx, appID)
	if err != nil {
		return nil, err
	}
	path, ok := extract.Detail.ExtractString(m, "similarURL")
	if !ok || path == "" {
		return emptyPager(), nil
	}
	return s.newPager(strings.TrimSuffix(s.cfg.BaseURL, "/") + path), nil
}

// Developer returns a pager over the apps of a developer, addressed by
// numeric id or by name.
func (s *Scraper) Developer(devID string) (*Pager, error) {
	fn := "developer"
	if isNumeric(devID) {
		fn = "dev"
	}
	return s.list(KindDetails, s.query(fn, devID))
}

// Search returns a pager over the results for term.
func (s *Scraper) Search(term string) (*Pager, error) {
	return s.list(KindSearch, s.query("search", term))
}

// Collection returns a pager over a named collection.
func (s *Scraper) Collection(name string) (*Pager, error) {
	return s.list(KindCollection, s.query("collection", name))
}

// Category returns a pager over the recommended apps of a category.
func (s *Scraper) Category(name string) (*Pager, error) {
	return s.list(KindCollection, s.query("category", name))
}

// FilteredCollection returns a pager over a collection within a category.
// An empty collection means "top".
func (s *Scraper) FilteredCollection(category, collection string) (*Pager, error) {
	q := s.locale()
	q.Category = category
	q.Collection = collection
	return s.list(KindFiltered, q)
}

func (s *Scraper) list(kind Kind, q Query) (*Pager, error) {
	target, err := s.endpoints.URL(kind, q)
	if err != nil {
		return nil, err
	}
	return s.newPager(target), nil
}

// PermissionGroup is one category of permissions, in site order.
type PermissionGroup struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// OtherPermissions names the group of permissions listed without a category.
const OtherPermissions = "Other"

// Permissions returns the permissions requested by appID, grouped by
// category in the order the site lists them.
func (s *Scraper) Permissions(ctx context.Context, appID string) ([]PermissionGroup, error) {
	resp, err := s.batch(ctx, BatchPermissions, appID, s.locale())
	if err != nil {
		return nil, err
	}
	return groupPermissions(resp), nil
}

func groupPermissions(resp any) []PermissionGroup {
	var groups []PermissionGroup
	index := make(map[string]int)
	add := func(group, permission string) {
		i, ok := index[group]
		if !ok {
			i = len(groups)
			index[group] = i
			groups = append(groups, PermissionGroup{Name: group})
		}
		groups[i].Permissions = append(groups[i].Permissions, permission)
	}

	categories, _ := resp.([]any)
	for _, c := range categories {
		entries, _ := c.([]any)
		for _, e := range entries {
			entry, ok := e.([]any)
			if !ok {
				continue
			}
			if len(entry) == 2 {
				if name, ok := entry[1].(string); ok {
					add(OtherPermissions, name)
				}
				continue
			}
			group, _ := parser.LookupString(entry, 0)
			subs, _ := parser.LookupSlice(entry, 2)
			for _, sub := range subs {
				if name, ok := parser.LookupString(sub, 1); ok {
					add(group, name)
				}
			}
		}
	}
	return groups
}

// Location returns the storefront location and language the site serves
// to this client, which reveals the effective exit country of a proxy.
func (s *Scraper) Location(ctx context.Context) (string, string, error) {
	body, err := s.fetcher.Get(ctx, strings.TrimSuffix(s.cfg.BaseURL, "/")+"/store/apps")
	if err != nil {
		return "", "", err
	}
	location, language, ok := parser.SiteLocation(parser.Parse(body))
	if !ok {
		return "", "", fmt.Errorf("location: %w", ErrEmptyResponse)
	}
	return location, language, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
