// Package parser turns storefront response bodies into nested data trees.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	scriptPattern = regexp.MustCompile(`AF_initDataCallback[\s\S]*?<\/script`)
	keyPattern    = regexp.MustCompile(`ds:(\d+)'`)
	valuePattern  = regexp.MustCompile(`data:([\s\S]*?), sideChannel: \{\}\}\);<\/`)
)

// batchGuard prefixes every batch endpoint response.
const batchGuard = ")]}'"

// RetryMarker appears in batch responses the server wants retried.
const RetryMarker = "PlayDataError"

// ErrMalformedBatch is returned when a batch response does not have the
// expected envelope.
var ErrMalformedBatch = errors.New("parser: malformed batch response")

// DatasetMap maps a dataset key (the N of "ds:N") to its decoded tree.
// Trees hold []any, map[string]any, float64, string, bool and nil.
type DatasetMap map[int]any

// Parse extracts every embedded data callback from body. Blocks without a
// key or payload, and payloads that are not valid JSON, are skipped.
func Parse(body string) DatasetMap {
	out := make(DatasetMap)
	for _, block := range scriptPattern.FindAllString(body, -1) {
		key := keyPattern.FindStringSubmatch(block)
		value := valuePattern.FindStringSubmatch(block)
		if key == nil || value == nil {
			continue
		}
		id, err := strconv.Atoi(key[1])
		if err != nil {
			continue
		}
		var tree any
		if err := json.Unmarshal([]byte(value[1]), &tree); err != nil {
			continue
		}
		out[id] = tree
	}
	return out
}

// Lookup resolves key then path inside m.
func (m DatasetMap) Lookup(key int, path ...int) (any, bool) {
	tree, ok := m[key]
	if !ok {
		return nil, false
	}
	return Lookup(tree, path...)
}

// Lookup descends tree one index at a time. It reports false when an index
// is out of range, a step lands on a non-sequence, or the leaf is null.
func Lookup(tree any, path ...int) (any, bool) {
	cur := tree
	for _, idx := range path {
		seq, ok := cur.([]any)
		if !ok || idx < 0 || idx >= len(seq) {
			return nil, false
		}
		cur = seq[idx]
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// LookupString is Lookup narrowed to a string leaf.
func LookupString(tree any, path ...int) (string, bool) {
	v, ok := Lookup(tree, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// LookupSlice is Lookup narrowed to a sequence leaf.
func LookupSlice(tree any, path ...int) ([]any, bool) {
	v, ok := Lookup(tree, path...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// SiteLocation reads the storefront location and language from the
// highest-numbered dataset of a page.
func SiteLocation(m DatasetMap) (location, language string, ok bool) {
	if len(m) == 0 {
		return "", "", false
	}
	maxKey := -1
	for k := range m {
		if k > maxKey {
			maxKey = k
		}
	}
	location, ok = LookupString(m[maxKey], 4)
	if !ok {
		return "", "", false
	}
	language, _ = LookupString(m[maxKey], 5)
	return location, language, true
}

// HasRetryMarker reports whether a batch response asks to be retried.
func HasRetryMarker(body string) bool {
	return strings.Contains(body, RetryMarker)
}

// ParseBatch decodes a batch endpoint response. The envelope carries the
// payload as a JSON string at [0][2], which is decoded in turn.
func ParseBatch(body string) (any, error) {
	trimmed := strings.TrimSpace(body)
	trimmed = strings.TrimPrefix(trimmed, batchGuard)
	trimmed = strings.TrimSpace(trimmed)

	var envelope any
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	inner, ok := LookupString(envelope, 0, 2)
	if !ok {
		return nil, fmt.Errorf("%w: no payload at [0][2]", ErrMalformedBatch)
	}
	var payload any
	if err := json.Unmarshal([]byte(inner), &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedBatch, err)
	}
	return payload, nil
}
