package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-play/config"
)

const (
	testBase  = "https://play.google.com"
	batchURL  = testBase + "/_/PlayStoreUi/data/batchexecute"
	searchURL = testBase + "/store/search"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimit{}
	cfg.Parallelism = 4
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config) (*Scraper, *httpmock.MockTransport) {
	t.Helper()
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.WithTransport(transport)
	return s, transport
}

func callback(key int, data string) string {
	return fmt.Sprintf("<script nonce=\"n\">AF_initDataCallback({key: 'ds:%d', hash: '2', data:%s, sideChannel: {}});</script>", key, data)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func appEntry(id string) []any {
	entry := make([]any, 13)
	entry[2] = "Title " + id
	entry[12] = []any{id}
	return entry
}

func appEntries(prefix string, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = appEntry(fmt.Sprintf("%s.%d", prefix, i))
	}
	return out
}

// cluster returns the list node holding apps and the continuation token.
func cluster(apps []any, token string) []any {
	w := make([]any, 8)
	w[0] = apps
	if token != "" {
		w[7] = []any{nil, token}
	}
	return w
}

func seedPage(t *testing.T, apps []any, token string) string {
	ds3 := []any{[]any{nil, []any{[]any{cluster(apps, token)}}}}
	return "<html><head>" + callback(3, mustJSON(t, ds3)) + "</head><body></body></html>"
}

func batchResponse(t *testing.T, apps []any, token string) string {
	payload := []any{[]any{cluster(apps, token)}}
	envelope := []any{[]any{"wrb.fr", "qnKhOb", mustJSON(t, payload), nil, nil, nil, "generic"}}
	return ")]}'\n\n" + mustJSON(t, envelope)
}

func formRequest(t *testing.T, req *http.Request) string {
	t.Helper()
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		t.Fatalf("parse body: %v", err)
	}
	return values.Get("f.req")
}

func TestFetcherClassification(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		label     string
		status    int
	}{
		{name: "not found", responder: httpmock.NewStringResponder(http.StatusNotFound, ""), label: "not_found", status: http.StatusNotFound},
		{name: "server error", responder: httpmock.NewStringResponder(http.StatusInternalServerError, ""), label: "http_error", status: http.StatusInternalServerError},
		{name: "forbidden", responder: httpmock.NewStringResponder(http.StatusForbidden, ""), label: "forbidden", status: http.StatusForbidden},
		{name: "rate limited", responder: httpmock.NewStringResponder(http.StatusTooManyRequests, ""), label: "rate_limited", status: http.StatusTooManyRequests},
		{name: "connection refused", responder: httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), label: "connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, transport := newTestScraper(t, testConfig())
			transport.RegisterResponder(http.MethodGet, testBase+"/store/apps/details", tt.responder)

			_, err := s.Fetcher().Get(context.Background(), testBase+"/store/apps/details?id=x")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := ErrorType(err); got != tt.label {
				t.Fatalf("ErrorType = %q, want %q (err=%v)", got, tt.label, err)
			}
			if got := StatusCode(err); got != tt.status {
				t.Fatalf("StatusCode = %d, want %d", got, tt.status)
			}
			if tt.status == 0 && !IsTransport(err) {
				t.Fatalf("expected transport error, got %v", err)
			}
		})
	}
}

func TestFetcherSuccessAndPost(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps", httpmock.NewStringResponder(http.StatusOK, "hello"))
	transport.RegisterResponder(http.MethodPost, batchURL, func(req *http.Request) (*http.Response, error) {
		if ct := req.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
			return httpmock.NewStringResponse(http.StatusBadRequest, ct), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "posted:"+formRequest(t, req)), nil
	})

	body, err := s.Fetcher().Get(context.Background(), testBase+"/store/apps")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if body != "hello" {
		t.Fatalf("body = %q, want hello", body)
	}

	body, err = s.Fetcher().Post(context.Background(), batchURL, "f.req=abc")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if body != "posted:abc" {
		t.Fatalf("body = %q, want posted:abc", body)
	}
}

func TestFetcherRejectsForeignHost(t *testing.T) {
	s, _ := newTestScraper(t, testConfig())
	_, err := s.Fetcher().Get(context.Background(), "https://elsewhere.example/store")
	if got := ErrorType(err); got != "invalid_request" {
		t.Fatalf("ErrorType = %q, want invalid_request (err=%v)", got, err)
	}
}

func TestFetcherCancelledContext(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps", httpmock.NewStringResponder(http.StatusOK, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fetcher().Get(ctx, testBase+"/store/apps"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "success", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "bad gateway", err: nil, statusCode: http.StatusBadGateway, expected: "http_error"},
		{name: "bad url", err: &url.Error{Op: "parse", URL: "::", Err: errors.New("missing scheme")}, expected: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestPaginationLoadOrder(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())

	seed := appEntries("seed", 40)
	second := appEntries("second", 30)
	third := appEntries("third", 10)

	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, seedPage(t, seed, "tok-1")))
	transport.RegisterResponder(http.MethodPost, batchURL, func(req *http.Request) (*http.Response, error) {
		freq := formRequest(t, req)
		switch {
		case strings.Contains(freq, `\"tok-1\"`):
			return httpmock.NewStringResponse(http.StatusOK, batchResponse(t, second, "tok-2")), nil
		case strings.Contains(freq, `\"tok-2\"`):
			return httpmock.NewStringResponse(http.StatusOK, batchResponse(t, third, "")), nil
		}
		return httpmock.NewStringResponse(http.StatusBadRequest, freq), nil
	})

	p, err := s.Search("maps")
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	var sizes []int
	var ids []string
	for p.Next(context.Background()) {
		sizes = append(sizes, len(p.Page()))
		for _, e := range p.Page() {
			ids = append(ids, e.([]any)[12].([]any)[0].(string))
		}
	}
	if err := p.Err(); err != nil {
		t.Fatalf("pager error: %v", err)
	}
	if diff := cmp.Diff([]int{40, 30, 10}, sizes); diff != "" {
		t.Fatalf("page sizes mismatch (-want +got):\n%s", diff)
	}
	if len(ids) != 80 {
		t.Fatalf("ids = %d, want 80", len(ids))
	}
	if ids[0] != "seed.0" || ids[40] != "second.0" || ids[79] != "third.9" {
		t.Fatalf("unexpected order: %s %s %s", ids[0], ids[40], ids[79])
	}
	if p.Token() != "" {
		t.Fatalf("token = %q, want empty", p.Token())
	}
	if p.Next(context.Background()) {
		t.Fatalf("pager should stay exhausted")
	}

	info := transport.GetCallCountInfo()
	if got := info["POST "+batchURL]; got != 2 {
		t.Fatalf("batch calls = %d, want 2", got)
	}
}

func TestPaginationRetryMarkerExhausted(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())

	seed := appEntries("seed", 40)
	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, seedPage(t, seed, "tok-1")))
	transport.RegisterResponder(http.MethodPost, batchURL,
		httpmock.NewStringResponder(http.StatusOK, `)]}'`+"\n\n"+`[["er",null,null,null,null,500,null,null,null,["PlayDataError"]]]`))

	p, err := s.Search("maps")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	ids, err := p.IDs(context.Background())
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 40 {
		t.Fatalf("ids = %d, want only the 40 seed results", len(ids))
	}

	info := transport.GetCallCountInfo()
	if got := info["POST "+batchURL]; got != 5 {
		t.Fatalf("batch attempts = %d, want 5", got)
	}
}

func TestPaginationMarkerThenData(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())

	calls := 0
	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, seedPage(t, appEntries("seed", 2), "tok-1")))
	transport.RegisterResponder(http.MethodPost, batchURL, func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusOK, "PlayDataError"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, batchResponse(t, appEntries("next", 3), "")), nil
	})

	p, _ := s.Search("maps")
	ids, err := p.IDs(context.Background())
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if diff := cmp.Diff([]string{"seed.0", "seed.1", "next.0", "next.1", "next.2"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if calls != 3 {
		t.Fatalf("batch calls = %d, want 3", calls)
	}
}

func TestPaginationFollowsTokenPastEmptyPage(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())

	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, seedPage(t, appEntries("seed", 5), "tok-1")))
	transport.RegisterResponder(http.MethodPost, batchURL, func(req *http.Request) (*http.Response, error) {
		freq := formRequest(t, req)
		switch {
		case strings.Contains(freq, `\"tok-1\"`):
			return httpmock.NewStringResponse(http.StatusOK, batchResponse(t, appEntries("empty", 0), "tok-2")), nil
		case strings.Contains(freq, `\"tok-2\"`):
			return httpmock.NewStringResponse(http.StatusOK, batchResponse(t, appEntries("last", 3), "")), nil
		}
		return httpmock.NewStringResponse(http.StatusBadRequest, freq), nil
	})

	p, _ := s.Search("maps")
	ids, err := p.IDs(context.Background())
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 8 || ids[5] != "last.0" {
		t.Fatalf("ids = %v, want 5 seed then 3 last", ids)
	}
	if got := transport.GetCallCountInfo()["POST "+batchURL]; got != 2 {
		t.Fatalf("batch calls = %d, want 2", got)
	}
}

func TestPaginationStopsOnRepeatedToken(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())

	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, seedPage(t, appEntries("seed", 2), "tok-1")))
	transport.RegisterResponder(http.MethodPost, batchURL, httpmock.NewStringResponder(http.StatusOK, batchResponse(t, appEntries("again", 0), "tok-1")))

	p, _ := s.Search("maps")
	ids, err := p.IDs(context.Background())
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %d, want 2", len(ids))
	}
	if got := transport.GetCallCountInfo()["POST "+batchURL]; got != 1 {
		t.Fatalf("batch calls = %d, want 1", got)
	}
}

func TestPaginationContinuationFailureKeepsResults(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, seedPage(t, appEntries("seed", 5), "tok-1")))
	transport.RegisterResponder(http.MethodPost, batchURL, httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	p, _ := s.Search("maps")
	ids, err := p.IDs(context.Background())
	if err != nil {
		t.Fatalf("continuation failure must not surface: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("ids = %d, want 5", len(ids))
	}
}

func TestPaginationSeedFailure(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	p, _ := s.Search("maps")
	_, err := p.IDs(context.Background())
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	transport.RegisterResponder(http.MethodGet, searchURL, httpmock.NewStringResponder(http.StatusOK, "<html></html>"))
	p, _ = s.Search("maps")
	if _, err := p.IDs(context.Background()); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func detailsPage(t *testing.T) string {
	ds5 := []any{[]any{[]any{"Example App"}}}
	ds8 := []any{"12M", "1.2.3", "Android 8.0 and up"}
	location := []any{nil, nil, nil, nil, "US", "en_US"}
	button := `<button><span itemprop="offers"><meta itemprop="url" content="https://play.google.com/store/apps/details?id=com.example.app&amp;rdid=com.example.app"></span></button>`
	return "<html><head>" +
		callback(5, mustJSON(t, ds5)) +
		callback(8, mustJSON(t, ds8)) +
		callback(20, mustJSON(t, location)) +
		"</head><body>" + button + "</body></html>"
}

func TestDetails(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps/details", httpmock.NewStringResponder(http.StatusOK, detailsPage(t)))

	rec, err := s.Details(context.Background(), "com.example.app")
	if err != nil {
		t.Fatalf("details: %v", err)
	}

	checks := map[string]any{
		"appId":               "com.example.app",
		"url":                 testBase + "/store/apps/details?id=com.example.app",
		"siteLocation":        "US",
		"siteLanguage":        "en_US",
		"title":               "Example App",
		"version":             "1.2.3",
		"androidVersion":      "Android",
		"downloadLink":        "https://play.google.com/store/apps/details?id=com.example.app&rdid=com.example.app",
		"downloadLinkEnabled": true,
	}
	for name, want := range checks {
		got, _ := rec.Get(name)
		if !cmp.Equal(want, got) {
			t.Fatalf("%s = %#v, want %#v", name, got, want)
		}
	}
	if v, ok := rec.Get("price"); !ok || v != nil {
		t.Fatalf("price = %#v, want present and nil", v)
	}
}

func TestDetailsEmptyPage(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps/details", httpmock.NewStringResponder(http.StatusOK, "<html></html>"))

	if _, err := s.Details(context.Background(), "com.example.app"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestPermissions(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())

	payload := []any{
		[]any{
			[]any{"Location", []any{nil, nil, nil, []any{nil, "icon"}}, []any{
				[]any{nil, "approximate location"},
				[]any{nil, "precise location"},
			}},
			[]any{"Storage", nil, []any{[]any{nil, "read storage"}}},
		},
		[]any{
			[]any{nil, "full network access"},
			[]any{nil, "prevent device from sleeping"},
		},
	}
	envelope := []any{[]any{"wrb.fr", "xdSrCf", mustJSON(t, payload), nil, nil, nil, "1"}}
	transport.RegisterResponder(http.MethodPost, batchURL, func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(formRequest(t, req), `\"com.example.app\",7`) {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, ")]}'\n\n"+mustJSON(t, envelope)), nil
	})

	groups, err := s.Permissions(context.Background(), "com.example.app")
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	want := []PermissionGroup{
		{Name: "Location", Permissions: []string{"approximate location", "precise location"}},
		{Name: "Storage", Permissions: []string{"read storage"}},
		{Name: OtherPermissions, Permissions: []string{"full network access", "prevent device from sleeping"}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Fatalf("permissions mismatch (-want +got):\n%s", diff)
	}
}

func TestLocation(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	page := "<html>" + callback(2, `[1]`) + callback(9, `[null,null,null,null,"DE","de_DE"]`) + "</html>"
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps", httpmock.NewStringResponder(http.StatusOK, page))

	location, language, err := s.Location(context.Background())
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if location != "DE" || language != "de_DE" {
		t.Fatalf("location = %q/%q, want DE/de_DE", location, language)
	}
}

func TestDeveloperRouting(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	page := seedPage(t, appEntries("dev", 1), "")
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps/dev", httpmock.NewStringResponder(http.StatusOK, page))
	transport.RegisterResponder(http.MethodGet, testBase+"/store/apps/developer", httpmock.NewStringResponder(http.StatusOK, page))

	for _, id := range []string{"5700313618786177705", "Example Studio"} {
		p, err := s.Developer(id)
		if err != nil {
			t.Fatalf("developer %q: %v", id, err)
		}
		if _, err := p.IDs(context.Background()); err != nil {
			t.Fatalf("developer %q ids: %v", id, err)
		}
	}

	info := transport.GetCallCountInfo()
	if info["GET "+testBase+"/store/apps/dev"] != 1 || info["GET "+testBase+"/store/apps/developer"] != 1 {
		t.Fatalf("unexpected routing: %v", info)
	}
}
