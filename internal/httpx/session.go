// Package httpx wraps net/http with the status handling the harvest
// collaborators share: a structured error for non-2xx responses so
// callers can tell "path absent at this ref" from everything else, and
// request pacing against the shared upstream hosts.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// IsNotFound reports whether err is a StatusError with HTTP 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Session is a rate-conscious HTTP GET client. Requests are sequential;
// the delay spaces consecutive requests and 429 responses are absorbed
// with a bounded sleep-and-retry before surfacing as a StatusError.
type Session struct {
	client        *http.Client
	delay         time.Duration
	backoff       time.Duration
	maxRetries    int
	lastRequestAt time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithDelay sets the minimum spacing between consecutive requests.
func WithDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithRetryBackoff sets the sleep applied after a 429 response.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Session) { s.backoff = d }
}

// WithHTTPClient replaces the underlying client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// NewSession creates a Session with sane defaults.
func NewSession(opts ...Option) *Session {
	s := &Session{
		client:     &http.Client{Timeout: 2 * time.Minute},
		backoff:    20 * time.Second,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches url and returns the response body. Non-2xx statuses map
// to *StatusError; 429 is retried maxRetries times before giving up.
func (s *Session) Get(ctx context.Context, url string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("httpx: session is nil")
	}
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := s.pace(ctx); err != nil {
			return nil, err
		}
		body, err := s.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
			return nil, err
		}
		if err := sleepCtx(ctx, s.backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *Session) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func (s *Session) pace(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	if wait := s.delay - time.Since(s.lastRequestAt); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	s.lastRequestAt = time.Now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
