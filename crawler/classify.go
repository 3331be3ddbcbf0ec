package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-scrape-play/scraper"
)

// Code is the class of a crawl failure. Codes below 10 are storefront
// rejections; the rest are transient.
type Code int

const (
	CodeNotFound     Code = 1
	CodeIncompatible Code = 2
	CodeOutdated     Code = 4
	CodeRegion       Code = 5
	CodeProvider     Code = 8
	CodeRateLimit    Code = 14
	CodeUnknown      Code = 15
)

// reasons maps storefront rejection messages to their codes, checked in order.
var reasons = []struct {
	text string
	code Code
}{
	{"Item not found", CodeNotFound},
	{"Your device is not compatible with this item", CodeIncompatible},
	{"The Play Store application on your device is outdated", CodeOutdated},
	{"Google Play purchases are not supported in your country", CodeRegion},
	{"This item is not available on your service provider", CodeProvider},
	{"Rate limit triggered", CodeRateLimit},
}

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeIncompatible:
		return "incompatible"
	case CodeOutdated:
		return "outdated"
	case CodeRegion:
		return "region"
	case CodeProvider:
		return "provider"
	case CodeRateLimit:
		return "rate_limit"
	case CodeUnknown:
		return "unknown"
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Classification is the outcome class of one failed attempt.
type Classification struct {
	Code    Code
	Message string
}

// Permanent reports whether the storefront rejected the item for good.
func (c Classification) Permanent() bool {
	switch c.Code {
	case CodeNotFound, CodeIncompatible, CodeRegion, CodeProvider:
		return true
	}
	return false
}

// ErrConfiguration marks setup problems such as a missing credentials
// file. Items failing with it are never retried.
var ErrConfiguration = errors.New("configuration error")

// IsConfiguration reports whether err is a setup problem rather than a
// per-item fault.
func IsConfiguration(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "configuration file") || strings.Contains(msg, "credentials")
}

// abortReason names why err ends an item without retry or a failure
// record, or returns "". A request the scraper refuses to build or send
// fails the same way on every attempt.
func abortReason(err error) string {
	if IsConfiguration(err) {
		return "configuration"
	}
	var invalid scraper.ErrInvalidRequest
	if errors.As(err, &invalid) {
		return "invalid_request"
	}
	return ""
}

// Classify maps a task error onto a Classification. Known rejection
// messages win; a 404 is "item not found" and a 429 a rate limit.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	msg := err.Error()
	for _, r := range reasons {
		if strings.Contains(msg, r.text) {
			return Classification{Code: r.code, Message: msg}
		}
	}

	var notFound scraper.ErrNotFound
	if errors.As(err, &notFound) {
		return Classification{Code: CodeNotFound, Message: msg}
	}
	if scraper.StatusCode(err) == http.StatusTooManyRequests {
		return Classification{Code: CodeRateLimit, Message: msg}
	}
	return Classification{Code: CodeUnknown, Message: msg}
}

// finalFailure decides the recorded outcome of an item that failed twice.
// A permanent second error wins; otherwise a permanent first error is kept.
// Two transient errors yield nil: the item is abandoned for a later run.
func finalFailure(first, second Classification) *Classification {
	if second.Permanent() {
		return &second
	}
	if first.Permanent() {
		return &first
	}
	return nil
}

// failureText strips a leading "prefix: " from a downloader message so the
// failure file records the storefront reason itself.
func failureText(msg string) string {
	if _, rest, ok := strings.Cut(msg, ": "); ok && rest != "" {
		return rest
	}
	return msg
}
