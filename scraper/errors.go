package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/gocolly/colly/v2"
)

// ErrEmptyResponse is returned when a page carries no embedded data.
var ErrEmptyResponse = errors.New("scraper: response has no data callbacks")

// ErrRetryExhausted is returned when the batch endpoint keeps answering
// with its retry marker.
var ErrRetryExhausted = errors.New("scraper: batch retry marker persisted")

// ErrInvalidRequest indicates a request that could not be built or was
// refused before being sent. It is never worth retrying.
type ErrInvalidRequest struct {
	Err error
}

func (e ErrInvalidRequest) Error() string {
	return fmt.Errorf("invalid_request: %w", e.Err).Error()
}

func (e ErrInvalidRequest) Unwrap() error {
	return e.Err
}

func invalidf(format string, args ...any) error {
	return ErrInvalidRequest{Err: fmt.Errorf(format, args...)}
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network, DNS or proxy failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrExtraHTTP indicates any other non-success HTTP status.
type ErrExtraHTTP struct {
	StatusCode int
	Err        error
}

func (e ErrExtraHTTP) Error() string {
	return fmt.Errorf("http_%d: %w", e.StatusCode, e.Err).Error()
}

func (e ErrExtraHTTP) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport failure (timeout or
// connection), as opposed to an HTTP or request error.
func IsTransport(err error) bool {
	var timeout ErrTimeout
	var conn ErrConnection
	return errors.As(err, &timeout) || errors.As(err, &conn)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var extra ErrExtraHTTP
	if errors.As(err, &extra) {
		return extra.StatusCode
	}
	return 0
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		if errors.Is(err, colly.ErrForbiddenDomain) || errors.Is(err, colly.ErrMissingURL) ||
			errors.Is(err, colly.ErrForbiddenURL) || errors.Is(err, colly.ErrNoURLFiltersMatch) ||
			errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return ErrInvalidRequest{Err: err}
		}
		var parseErr *url.Error
		if errors.As(err, &parseErr) && parseErr.Op == "parse" {
			return ErrInvalidRequest{Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}
	wrapped := fmt.Errorf("http status %d", statusCode)
	if statusCode == http.StatusNotFound {
		return ErrNotFound{Err: wrapped}
	}
	return ErrExtraHTTP{StatusCode: statusCode, Err: wrapped}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var invalid ErrInvalidRequest
	if errors.As(err, &invalid) {
		return "invalid_request"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var extra ErrExtraHTTP
	if errors.As(err, &extra) {
		switch extra.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http_error"
	}
	if errors.Is(err, ErrRetryExhausted) {
		return "retry_exhausted"
	}
	if errors.Is(err, ErrEmptyResponse) {
		return "empty_response"
	}
	return "other"
}

// ErrorType returns the metric label for err.
func ErrorType(err error) string {
	return errorTypeLabel(err)
}
