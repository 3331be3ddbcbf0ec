package scraper

import (
	"errors"
	"net/url"
	"testing"
)

func TestEndpointsURL(t *testing.T) {
	e := Endpoints{Base: "https://play.google.com/"}

	tests := []struct {
		name string
		kind Kind
		q    Query
		want string
	}{
		{
			name: "details without locale",
			kind: KindDetails,
			q:    Query{Func: "details", ID: "com.example.app"},
			want: "https://play.google.com/store/apps/details?id=com.example.app",
		},
		{
			name: "details with locale",
			kind: KindDetails,
			q:    Query{Func: "details", ID: "com.example.app", Lang: "en", Country: "us"},
			want: "https://play.google.com/store/apps/details?id=com.example.app&hl=en&gl=us",
		},
		{
			name: "developer name is escaped",
			kind: KindDetails,
			q:    Query{Func: "developer", ID: "Example Studio & Co"},
			want: "https://play.google.com/store/apps/developer?id=Example+Studio+%26+Co",
		},
		{
			name: "search with country only",
			kind: KindSearch,
			q:    Query{ID: "offline maps", Country: "de"},
			want: "https://play.google.com/store/search?q=offline+maps&gl=de&c=apps",
		},
		{
			name: "collection",
			kind: KindCollection,
			q:    Query{Func: "collection", ID: "cluster_1"},
			want: "https://play.google.com/store/apps/collection/cluster_1",
		},
		{
			name: "category with language",
			kind: KindCollection,
			q:    Query{Func: "category", ID: "GAME_PUZZLE", Lang: "pt_BR"},
			want: "https://play.google.com/store/apps/category/GAME_PUZZLE?hl=pt_BR",
		},
		{
			name: "filtered defaults to top",
			kind: KindFiltered,
			q:    Query{Category: "FINANCE"},
			want: "https://play.google.com/store/apps/top/category/FINANCE",
		},
		{
			name: "filtered with collection and locale",
			kind: KindFiltered,
			q:    Query{Category: "FINANCE", Collection: "new", Lang: "fr", Country: "fr"},
			want: "https://play.google.com/store/apps/new/category/FINANCE?hl=fr&gl=fr",
		},
		{
			name: "batch",
			kind: KindBatch,
			want: "https://play.google.com/_/PlayStoreUi/data/batchexecute",
		},
		{
			name: "batch with locale",
			kind: KindBatch,
			q:    Query{Lang: "en", Country: "gb"},
			want: "https://play.google.com/_/PlayStoreUi/data/batchexecute?hl=en&gl=gb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.URL(tt.kind, tt.q)
			if err != nil {
				t.Fatalf("URL: %v", err)
			}
			if got != tt.want {
				t.Fatalf("URL = %q, want %q", got, tt.want)
			}
			if _, err := url.Parse(got); err != nil {
				t.Fatalf("URL %q does not parse: %v", got, err)
			}
		})
	}
}

func TestEndpointsURLInvalid(t *testing.T) {
	e := Endpoints{Base: "https://play.google.com"}

	tests := []struct {
		name string
		kind Kind
		q    Query
	}{
		{name: "unknown kind", kind: Kind(42), q: Query{ID: "x"}},
		{name: "details missing id", kind: KindDetails, q: Query{Func: "details"}},
		{name: "details bad func", kind: KindDetails, q: Query{Func: "reviews", ID: "x"}},
		{name: "search blank term", kind: KindSearch, q: Query{ID: "   "}},
		{name: "collection bad func", kind: KindCollection, q: Query{Func: "details", ID: "x"}},
		{name: "filtered missing category", kind: KindFiltered, q: Query{Collection: "top"}},
		{name: "malformed language", kind: KindDetails, q: Query{Func: "details", ID: "x", Lang: "en&x=1"}},
		{name: "malformed country", kind: KindSearch, q: Query{ID: "x", Country: "usa"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.URL(tt.kind, tt.q)
			var invalid ErrInvalidRequest
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}

	if _, err := (Endpoints{}).URL(KindBatch, Query{}); err == nil {
		t.Fatalf("empty base should fail")
	}
}

func TestBatchBody(t *testing.T) {
	tests := []struct {
		name  string
		kind  BatchKind
		param string
		want  string
	}{
		{
			name:  "permissions",
			kind:  BatchPermissions,
			param: "com.example.app",
			want:  "f.req=%5B%5B%5B%22xdSrCf%22%2C%22%5B%5Bnull%2C%5B%5C%22com.example.app%5C%22%2C7%5D%2C%5B%5D%5D%5D%22%2Cnull%2C%221%22%5D%5D%5D",
		},
		{
			name:  "token",
			kind:  BatchToken,
			param: "CgwIARIICAE",
			want:  "f.req=%5B%5B%5B%22qnKhOb%22%2C%22%5B%5Bnull%2C%5B%5B10%2C%5B10%2C50%5D%5D%2Ctrue%2Cnull%2C%5B96%2C27%2C4%2C8%2C57%2C30%2C110%2C79%2C11%2C16%2C49%2C1%2C3%2C9%2C12%2C104%2C55%2C56%2C51%2C10%2C34%2C31%2C77%5D%2C%5Bnull%2Cnull%2Cnull%2C%5B%5B%5B%5B7%2C31%5D%2C%5B%5B1%2C43%2C112%2C92%2C58%2C69%2C31%2C19%2C96%5D%5D%5D%5D%5D%5D%5D%2Cnull%2C%5C%22CgwIARIICAE%5C%22%5D%5D%22%2Cnull%2C%22generic%22%5D%5D%5D",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BatchBody(tt.kind, tt.param)
			if err != nil {
				t.Fatalf("BatchBody: %v", err)
			}
			if got != tt.want {
				t.Fatalf("BatchBody =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestBatchBodyInvalid(t *testing.T) {
	var invalid ErrInvalidRequest
	if _, err := BatchBody(BatchToken, ""); !errors.As(err, &invalid) {
		t.Fatalf("empty token: err = %v, want ErrInvalidRequest", err)
	}
	if _, err := BatchBody(BatchKind(9), "x"); !errors.As(err, &invalid) {
		t.Fatalf("unknown kind: err = %v, want ErrInvalidRequest", err)
	}
}
