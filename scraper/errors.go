package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind groups request failures for metrics and retry decisions.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindServer      ErrorKind = "server"
	KindParse       ErrorKind = "parse"
	KindOther       ErrorKind = "other"
)

// RequestError is a classified failure of one page request.
type RequestError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *RequestError) Retryable() bool {
	switch e.Kind {
	case KindForbidden, KindNotFound, KindParse:
		return false
	}
	return true
}

// classifyError maps a transport error and status code to a RequestError.
// It returns nil when there is nothing to classify.
func classifyError(url string, err error, statusCode int) *RequestError {
	if err == nil && statusCode == 0 {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}
	re := &RequestError{Kind: KindOther, URL: url, Status: statusCode, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		re.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		re.Kind = KindTimeout
	case errors.As(err, &opErr):
		re.Kind = KindConnection
	case statusCode == http.StatusForbidden:
		re.Kind = KindForbidden
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		re.Kind = KindNotFound
	case statusCode == http.StatusTooManyRequests:
		re.Kind = KindRateLimited
	case statusCode >= http.StatusInternalServerError:
		re.Kind = KindServer
	}
	return re
}

func errorTypeLabel(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	if err == nil {
		return "unknown"
	}
	return string(KindOther)
}
