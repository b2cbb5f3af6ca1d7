// Package platform is the authenticated HTTP client for the research data
// platform: the BFF, the upload and download services and the portal. It
// injects credentials and session headers, retries transient failures, and
// exposes one typed method per endpoint.
package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// Sentinel errors for HTTP status classification.
var (
	ErrBadRequest   = errors.New("platform: bad request")
	ErrUnauthorized = errors.New("platform: unauthorized")
	ErrForbidden    = errors.New("platform: forbidden")
	ErrNotFound     = errors.New("platform: not found")
	ErrConflict     = errors.New("platform: conflict")
	ErrThrottled    = errors.New("platform: throttled")
	ErrServerError  = errors.New("platform: server error")
)

// HTTPError is a non-2xx response that was not retried away. Body holds the
// raw response for display.
type HTTPError struct {
	Method    string
	Endpoint  string
	Status    int
	Body      string
	Exhausted bool  // a retryable status persisted through every attempt
	Err       error // sentinel, for errors.Is()
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("platform: %s %s: HTTP %d: %s", e.Method, e.Endpoint, e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Is lets callers match the taxonomy codes the status implies.
func (e *HTTPError) Is(target error) bool {
	c, ok := target.(clierr.Code)
	if !ok {
		return false
	}

	switch {
	case e.Exhausted:
		return c == clierr.RetryExhausted
	case e.Status >= http.StatusInternalServerError:
		return c == clierr.ServerError
	default:
		return false
	}
}

// TransportError is a network failure that persisted through every attempt.
type TransportError struct {
	Method   string
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("platform: %s %s failed after %d attempts: %v", e.Method, e.Endpoint, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches clierr.ConnectionError.
func (e *TransportError) Is(target error) bool {
	return target == clierr.ConnectionError
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}

	return 0
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether status should be retried. 404 is retried only
// for search requests, where the index may lag a recent write.
func isRetryable(code int, search bool) bool {
	switch code {
	case http.StatusUnauthorized,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusNotFound:
		return search
	default:
		return false
	}
}
