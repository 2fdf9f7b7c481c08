// Package httpx provides the outbound HTTP client used for external API
// calls: bounded timeouts, bearer authentication, circuit breaking, and a
// single automatic retry. Provisioning calls are idempotent upstream, so one
// retry is safe; more than one is never attempted.
package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"shipmode-access/internal/circuitbreaker"
	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/logging"
)

// Response represents an HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Client is a thin wrapper around http.Client for bearer-authenticated API
// calls. The bearer token never appears in returned errors.
type Client struct {
	client  *http.Client
	breaker *circuitbreaker.Breaker
	bearer  string
	logger  logging.Logger
}

// Option modifies a Client during construction.
type Option func(*Client)

// WithBreaker attaches a circuit breaker to the client.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithTransport sets a custom transport, used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = rt
	}
}

// New creates a client with the given per-request timeout and bearer token.
func New(timeout time.Duration, bearer string, logger logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	c := &Client{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		bearer: bearer,
		logger: logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do performs a request and returns the response with its body read. Any
// HTTP response, including errors like 404 or 422, is returned for the
// caller to interpret; an error is returned only when no usable response
// exists (connection failure, timeout, open circuit). Connection failures
// and 5xx responses are retried exactly once.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	var resp *Response
	var lastErr error

	for attempt := 1; attempt <= 2; attempt++ {
		err := c.execute(ctx, func() error {
			r, err := c.attempt(ctx, method, url, body, headers)
			if err != nil {
				return err
			}
			resp = r
			if r.StatusCode >= 500 {
				return errors.UpstreamError("upstream returned a server error", nil).
					WithContext("status", r.StatusCode)
			}
			return nil
		})

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == 2 || !retryable(err) {
			break
		}

		c.logger.Warn("Retrying upstream request",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()},
		)

		select {
		case <-ctx.Done():
			return nil, errors.TimeoutError("upstream request")
		case <-time.After(500 * time.Millisecond):
		}
	}

	// A persistent 5xx still carries a readable response; hand it back so
	// the caller can report the upstream status.
	if resp != nil && resp.StatusCode >= 500 && errors.IsType(lastErr, errors.ErrTypeUpstream) {
		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) execute(ctx context.Context, fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(ctx, fn)
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	start := time.Now()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, errors.InternalError("failed to create request", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.TimeoutError("upstream request")
		}
		// The error from http.Client wraps the URL but never the
		// Authorization header; safe to carry as a cause.
		return nil, errors.ConnectionError("request failed", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ConnectionError("failed to read response body", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       responseBody,
		Duration:   time.Since(start),
	}, nil
}

// retryable reports whether a failed attempt should be tried once more.
// Timeouts are not retried: the caller's deadline budget is already spent.
func retryable(err error) bool {
	return errors.IsType(err, errors.ErrTypeConnection) ||
		errors.IsType(err, errors.ErrTypeUpstream)
}
