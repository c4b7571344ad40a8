package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a FetchError.
type ErrorKind string

// Fetch error kinds.
const (
	KindInvalidURL    ErrorKind = "invalid_url"
	KindRobotsBlocked ErrorKind = "robots_blocked"
	KindTransport     ErrorKind = "transport"
	KindTimeout       ErrorKind = "timeout"
	KindHTTPStatus    ErrorKind = "http_status"
	KindServerError   ErrorKind = "server_error"
	KindRead          ErrorKind = "read_body"
)

// FetchError is the error returned by Fetch.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %s", e.URL, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetch %s: %s: %s", e.URL, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed: transport errors,
// timeouts, 5xx, 408 and 429.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindTimeout, KindServerError, KindRead:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
	default:
		return false
	}
}

func classifyTransportError(rawURL string, err error) *FetchError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: rawURL, Message: err.Error(), Err: err}
}

func statusError(rawURL string, statusCode int) *FetchError {
	kind := KindHTTPStatus
	if statusCode >= statusServerErrLow {
		kind = KindServerError
	}
	return &FetchError{
		Kind:       kind,
		URL:        rawURL,
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
	}
}
