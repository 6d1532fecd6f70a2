package upstream

import (
	"fmt"
	"time"
)

// UpstreamError reports a response outside [200,300). Retryable only for
// 429 and 5xx.
type UpstreamError struct {
	StatusCode int
	URL        string
	Body       string

	// retryAfter carries a server-provided Retry-After hint, if any.
	retryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request failed: %d url=%s body=%s", e.StatusCode, e.URL, e.Body)
}

// Retryable reports whether the failure is worth retrying with backoff.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// TransportError reports a connection or timeout failure. Always retryable.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport failure: url=%s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable always reports true for transport failures.
func (e *TransportError) Retryable() bool { return true }

// ParseError reports a malformed response body. Non-retryable; Body is kept
// for diagnosis.
type ParseError struct {
	URL  string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream response unparseable: url=%s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
