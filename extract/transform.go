// Package extract applies declarative field specifications to parsed
// storefront data.
package extract

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-play/parser"
)

// ErrTransform is wrapped by every transform failure.
var ErrTransform = errors.New("extract: transform failed")

// Transform post-processes a raw extracted value. Transforms are pure and
// must not modify their input.
type Transform struct {
	Name string
	fn   func(any) (any, error)
}

// Apply runs the transform. A zero Transform returns v unchanged.
func (t Transform) Apply(v any) (any, error) {
	if t.fn == nil {
		return v, nil
	}
	return t.fn(v)
}

func transformErr(name string, v any) error {
	return fmt.Errorf("%w: %s on %T", ErrTransform, name, v)
}

// Unescape turns <br> into CRLF and decodes HTML entities.
var Unescape = Transform{Name: "unescape", fn: func(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, transformErr("unescape", v)
	}
	return html.UnescapeString(strings.ReplaceAll(s, "<br>", "\r\n")), nil
}}

// Digits keeps the decimal digits of a string and parses them, so
// "1,000,000+" becomes 1000000. An empty string yields 0.
var Digits = Transform{Name: "digits", fn: func(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, transformErr("digits", v)
	}
	if s == "" {
		return 0, nil
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: digits: %v", ErrTransform, err)
	}
	return n, nil
}}

// Micros converts a price in micro-units to units.
var Micros = Transform{Name: "micros", fn: func(v any) (any, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, transformErr("micros", v)
	}
	return f / 1_000_000, nil
}}

// IsZero reports whether a numeric value equals zero.
var IsZero = Transform{Name: "is_zero", fn: func(v any) (any, error) {
	f, ok := v.(float64)
	if !ok {
		return false, nil
	}
	return f == 0, nil
}}

// Truthy coerces a value to a boolean: null, false, zero, empty strings
// and empty sequences are false.
var Truthy = Transform{Name: "truthy", fn: func(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	case []any:
		return len(x) > 0, nil
	case map[string]any:
		return len(x) > 0, nil
	default:
		return true, nil
	}
}}

// FirstWord keeps the first whitespace-separated word, e.g. "4.4 and up".
var FirstWord = Transform{Name: "first_word", fn: func(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, transformErr("first_word", v)
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, transformErr("first_word", v)
	}
	return fields[0], nil
}}

// AfterID returns the part of a URL after "id=".
var AfterID = Transform{Name: "after_id", fn: func(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, transformErr("after_id", v)
	}
	_, after, found := strings.Cut(s, "id=")
	if !found {
		return nil, transformErr("after_id", v)
	}
	if end := strings.IndexByte(after, '&'); end >= 0 {
		after = after[:end]
	}
	return after, nil
}}

// Histogram reads the per-star rating counts for stars one through five.
var Histogram = Transform{Name: "histogram", fn: func(v any) (any, error) {
	out := make([]any, 0, 5)
	for star := 1; star <= 5; star++ {
		count, ok := parser.Lookup(v, star, 1)
		if !ok {
			return nil, transformErr("histogram", v)
		}
		out = append(out, count)
	}
	return out, nil
}}

// Pluck maps a sequence to the value at path inside each element. Any
// element missing the path fails the whole transform.
func Pluck(path ...int) Transform {
	name := "pluck" + fmt.Sprint(path)
	return Transform{Name: name, fn: func(v any) (any, error) {
		seq, ok := v.([]any)
		if !ok {
			return nil, transformErr(name, v)
		}
		out := make([]any, 0, len(seq))
		for _, item := range seq {
			leaf, ok := parser.Lookup(item, path...)
			if !ok {
				return nil, transformErr(name, item)
			}
			out = append(out, leaf)
		}
		return out, nil
	}}
}
