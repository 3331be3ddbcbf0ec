package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind selects an endpoint family.
type Kind int

const (
	KindDetails Kind = iota + 1
	KindSearch
	KindCollection
	KindFiltered
	KindBatch
)

func (k Kind) String() string {
	switch k {
	case KindDetails:
		return "details"
	case KindSearch:
		return "search"
	case KindCollection:
		return "collection"
	case KindFiltered:
		return "filtered"
	case KindBatch:
		return "batch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Query carries the parameters of one request target. Which fields are
// required depends on the Kind.
type Query struct {
	// Func is the page family: details, dev or developer for KindDetails,
	// collection or category for KindCollection.
	Func string
	// ID is the app id, developer id, search term, collection or category.
	ID string
	// Category and Collection are used by KindFiltered.
	Category   string
	Collection string

	Lang    string
	Country string
}

var (
	langPattern    = regexp.MustCompile(`^[a-z]{2,3}([_-][A-Za-z]{2,4})?$`)
	countryPattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

var detailFuncs = map[string]bool{"details": true, "dev": true, "developer": true}
var collectionFuncs = map[string]bool{"collection": true, "category": true}

// Endpoints builds request targets under a base URL.
type Endpoints struct {
	Base string
}

// URL returns the request target for kind and q. Missing or malformed
// parameters yield ErrInvalidRequest.
func (e Endpoints) URL(kind Kind, q Query) (string, error) {
	base := strings.TrimSuffix(e.Base, "/")
	if base == "" {
		return "", invalidf("empty base url")
	}
	locale, err := localeParams(q.Lang, q.Country)
	if err != nil {
		return "", err
	}

	switch kind {
	case KindDetails:
		if !detailFuncs[q.Func] {
			return "", invalidf("details: unsupported func %q", q.Func)
		}
		id, err := required("id", q.ID)
		if err != nil {
			return "", err
		}
		return base + "/store/apps/" + q.Func + "?id=" + url.QueryEscape(id) + prefixed("&", locale), nil

	case KindSearch:
		term, err := required("term", q.ID)
		if err != nil {
			return "", err
		}
		return base + "/store/search?q=" + url.QueryEscape(term) + prefixed("&", locale) + "&c=apps", nil

	case KindCollection:
		if !collectionFuncs[q.Func] {
			return "", invalidf("collection: unsupported func %q", q.Func)
		}
		id, err := required("id", q.ID)
		if err != nil {
			return "", err
		}
		return base + "/store/apps/" + q.Func + "/" + url.PathEscape(id) + prefixed("?", locale), nil

	case KindFiltered:
		category, err := required("category", q.Category)
		if err != nil {
			return "", err
		}
		collection := strings.TrimSpace(q.Collection)
		if collection == "" {
			collection = "top"
		}
		return base + "/store/apps/" + url.PathEscape(collection) + "/category/" + url.PathEscape(category) + prefixed("?", locale), nil

	case KindBatch:
		return base + "/_/PlayStoreUi/data/batchexecute" + prefixed("?", locale), nil
	}
	return "", invalidf("unknown endpoint kind %v", kind)
}

func required(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalidf("missing %s", name)
	}
	return value, nil
}

func localeParams(lang, country string) (string, error) {
	var parts []string
	if lang != "" {
		if !langPattern.MatchString(lang) {
			return "", invalidf("malformed language %q", lang)
		}
		parts = append(parts, "hl="+lang)
	}
	if country != "" {
		if !countryPattern.MatchString(country) {
			return "", invalidf("malformed country %q", country)
		}
		parts = append(parts, "gl="+country)
	}
	return strings.Join(parts, "&"), nil
}

func prefixed(sep, s string) string {
	if s == "" {
		return ""
	}
	return sep + s
}

// BatchKind selects a batch endpoint sub-protocol.
type BatchKind int

const (
	// BatchToken asks for the next page of a list.
	BatchToken BatchKind = iota + 1
	// BatchPermissions asks for the permission list of an app.
	BatchPermissions
)

// Fixed request descriptor for the "load more" call, as sent by the web client.
const tokenRequestPrefix = `[null,[[10,[10,50]],true,null,[96,27,4,8,57,30,110,79,11,16,49,1,3,9,12,104,55,56,51,10,34,31,77],[null,null,null,[[[[7,31],[[1,43,112,92,58,69,31,19,96]]]]]]],null`

// BatchBody returns the form-encoded POST body for a batch request.
func BatchBody(kind BatchKind, param string) (string, error) {
	if strings.TrimSpace(param) == "" {
		return "", invalidf("batch: missing parameter")
	}

	var rpc, tag string
	var inner []byte
	var err error
	switch kind {
	case BatchToken:
		rpc, tag = "qnKhOb", "generic"
		var quoted []byte
		quoted, err = marshalJSON(param)
		if err == nil {
			inner = []byte("[" + tokenRequestPrefix + "," + string(quoted) + "]]")
		}
	case BatchPermissions:
		rpc, tag = "xdSrCf", "1"
		inner, err = marshalJSON([]any{[]any{nil, []any{param, 7}, []any{}}})
	default:
		return "", invalidf("batch: unknown kind %d", int(kind))
	}
	if err != nil {
		return "", invalidf("batch: encode payload: %v", err)
	}

	payload, err := marshalJSON([]any{[]any{[]any{rpc, string(inner), nil, tag}}})
	if err != nil {
		return "", invalidf("batch: encode envelope: %v", err)
	}
	return "f.req=" + url.QueryEscape(string(payload)), nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
