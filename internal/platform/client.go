package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"
)

// Retry policy.
const (
	maxAttempts   = 3
	retryInterval = 100 * time.Millisecond
	maxErrorBody  = 64 << 10
)

// TokenSource supplies bearer tokens and the session id. Refresh is called
// once when the platform answers 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	SessionID() string
}

// Request describes one platform call. Body is kept as bytes so retries can
// resend it.
type Request struct {
	Method      string
	URL         string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// Search marks lookups whose 404 may be transient.
	Search bool
	// Unauthenticated requests (presigned URLs) carry no credentials.
	Unauthenticated bool
}

// Client is the HTTP client for every platform service.
type Client struct {
	ep         Endpoints
	httpClient *http.Client
	tokens     TokenSource
	vmInfo     string
	logger     *slog.Logger

	// sleepFunc waits between retries. Tests replace it to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient returns a Client. version is reported in the VM-Info header.
func NewClient(ep Endpoints, httpClient *http.Client, tokens TokenSource, version string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		ep:         ep,
		httpClient: httpClient,
		tokens:     tokens,
		vmInfo:     fmt.Sprintf("%s/%s pilotcli/%s", runtime.GOOS, runtime.GOARCH, version),
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Do executes req with the retry policy. On success the caller owns the
// response body.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	endpoint := redact(req.URL, req.Unauthenticated)

	var (
		token     string
		refreshed bool
	)

	if !req.Unauthenticated {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		token = tok
	}

	for attempt := 0; ; {
		resp, err := c.doOnce(ctx, req, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform: request canceled: %w", ctx.Err())
			}

			attempt++
			if attempt >= maxAttempts {
				return nil, &TransportError{Method: req.Method, Endpoint: endpoint, Attempts: attempt, Err: err}
			}

			c.logger.Warn("retrying after network error",
				slog.String("method", req.Method),
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)

			if err := c.sleepFunc(ctx, backoff(attempt)); err != nil {
				return nil, fmt.Errorf("platform: request canceled: %w", err)
			}

			continue
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", req.Method),
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		if readErr != nil {
			body = []byte("(failed to read response body)")
		}

		status := resp.StatusCode

		if status == http.StatusUnauthorized && !req.Unauthenticated {
			if refreshed {
				return nil, newHTTPError(req.Method, endpoint, status, body, false)
			}

			c.logger.Info("access token rejected, refreshing", slog.String("endpoint", endpoint))

			tok, err := c.tokens.Refresh(ctx)
			if err != nil {
				return nil, err
			}

			token, refreshed = tok, true

			continue
		}

		retryAfter, throttled := retryAfter(resp)

		if isRetryable(status, req.Search) || throttled {
			attempt++
			if attempt >= maxAttempts {
				return nil, newHTTPError(req.Method, endpoint, status, body, true)
			}

			wait := backoff(attempt)
			if throttled {
				wait = retryAfter
			}

			c.logger.Warn("retrying after HTTP error",
				slog.String("method", req.Method),
				slog.String("endpoint", endpoint),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
			)

			if err := c.sleepFunc(ctx, wait); err != nil {
				return nil, fmt.Errorf("platform: request canceled: %w", err)
			}

			continue
		}

		return nil, newHTTPError(req.Method, endpoint, status, body, false)
	}
}

// DoUnauthenticated executes req without credentials, for presigned URLs.
func (c *Client) DoUnauthenticated(ctx context.Context, req *Request) (*http.Response, error) {
	req.Unauthenticated = true

	return c.Do(ctx, req)
}

// JSON executes req and decodes a JSON response into out (when non-nil).
// It returns the response status.
func (c *Client) JSON(ctx context.Context, req *Request, out any) (int, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return StatusOf(err), err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("platform: decoding %s response: %w", redact(req.URL, req.Unauthenticated), err)
	}

	return resp.StatusCode, nil
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, out any) (int, error) {
	return c.JSON(ctx, &Request{Method: http.MethodGet, URL: rawURL, Query: query}, out)
}

// Post sends in as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, rawURL string, in, out any) (int, error) {
	return c.send(ctx, http.MethodPost, rawURL, in, out)
}

// Put sends in as JSON and decodes the response into out.
func (c *Client) Put(ctx context.Context, rawURL string, in, out any) (int, error) {
	return c.send(ctx, http.MethodPut, rawURL, in, out)
}

// Patch sends in as JSON and decodes the response into out.
func (c *Client) Patch(ctx context.Context, rawURL string, in, out any) (int, error) {
	return c.send(ctx, http.MethodPatch, rawURL, in, out)
}

// Delete sends in (which may be nil) as JSON and decodes the response into out.
func (c *Client) Delete(ctx context.Context, rawURL string, in, out any) (int, error) {
	return c.send(ctx, http.MethodDelete, rawURL, in, out)
}

func (c *Client) send(ctx context.Context, method, rawURL string, in, out any) (int, error) {
	req := &Request{Method: method, URL: rawURL}

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("platform: encoding request: %w", err)
		}

		req.Body = body
		req.ContentType = "application/json"
	}

	return c.JSON(ctx, req, out)
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, r *Request, token string) (*http.Response, error) {
	target := r.URL
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	if !r.Unauthenticated {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("VM-Info", c.vmInfo)
		req.Header.Set("Session-ID", c.tokens.SessionID())
	}

	return c.httpClient.Do(req)
}

func newHTTPError(method, endpoint string, status int, body []byte, exhausted bool) *HTTPError {
	return &HTTPError{
		Method:    method,
		Endpoint:  endpoint,
		Status:    status,
		Body:      string(body),
		Exhausted: exhausted,
		Err:       classifyStatus(status),
	}
}

// backoff returns the wait before retry number attempt (1-based), i.e.
// interval·(n+1) for the zero-based retry n.
func backoff(attempt int) time.Duration {
	return retryInterval * time.Duration(attempt)
}

// retryAfter reports the wait a 429 asks for. Without a Retry-After header
// the 429 is not retried.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}

	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0, false
	}

	seconds, err := strconv.Atoi(ra)
	if err != nil || seconds < 0 {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}

// redact strips the query string and, for presigned URLs, everything but
// the host, so signatures never reach the logs.
func redact(rawURL string, presigned bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparsable url)"
	}

	if presigned {
		return u.Scheme + "://" + u.Host
	}

	return u.Scheme + "://" + u.Host + u.Path
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
