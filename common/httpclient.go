package common

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HttpClient is an interface for HTTP operations with retry logic.
// This allows mocking or custom transport layers in testing.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
	CloseIdleConnections()
	RetryWithExponentialBackoff(ctx context.Context, operation func() ([]byte, error)) ([]byte, error)
	SetRandAndSleepForTest(sleep func(ctx context.Context, d time.Duration) error, seed int64)
}

// HTTPError is a custom error that captures unexpected status codes and response bodies.
type HTTPError struct {
	StatusCode int
	Body       []byte
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// NewHTTPError builds an HTTPError from a response whose body was already read.
func NewHTTPError(resp *http.Response, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       body,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter understands the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsRetryable reports whether the status code is worth another attempt:
// rate limiting or a transient server failure.
func IsRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// Implementation of HttpClient that wraps a standard *http.Client with retry logic.
type httpClient struct {
	client    *http.Client
	log       zerolog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// NewHttpClient returns a new HttpClient around base (typically a signed client)
// with a default timeout and a custom User-Agent.
func NewHttpClient(userAgent string, base *http.Client, logger zerolog.Logger) HttpClient {
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := &http.Client{
		Transport: &userAgentRoundTripper{
			Wrapped:   transport,
			UserAgent: userAgent,
		},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
	if client.Timeout == 0 {
		client.Timeout = DefaultTimeout
	}

	return &httpClient{
		client:    client,
		log:       logger,
		sleepFunc: sleepContext,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) Get(url string) (*http.Response, error) {
	return h.client.Get(url)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}

// Exponential backoff constants
const (
	maxRetries = 5
	baseDelay  = 1 * time.Second
	maxDelay   = 32 * time.Second
)

// RetryWithExponentialBackoff runs operation until it succeeds, returns an error
// that is not a retryable HTTPError, or maxRetries attempts were made.
// A Retry-After hint longer than the current backoff wins.
func (h *httpClient) RetryWithExponentialBackoff(ctx context.Context, operation func() ([]byte, error)) ([]byte, error) {
	var result []byte
	var err error
	delay := baseDelay

	for i := 0; i < maxRetries; i++ {
		if result, err = operation(); err == nil {
			return result, nil
		}

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !IsRetryable(httpErr.StatusCode) {
			// Not retryable, break
			break
		}
		if i == maxRetries-1 {
			break
		}

		wait := delay + h.jitter(delay)
		if httpErr.RetryAfter > wait {
			wait = httpErr.RetryAfter
		}
		h.log.Warn().
			Int("status", httpErr.StatusCode).
			Int("attempt", i+1).
			Dur("wait", wait).
			Msg("retrying request")

		if sleepErr := h.sleepFunc(ctx, wait); sleepErr != nil {
			return nil, sleepErr
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return nil, err
}

func (h *httpClient) jitter(delay time.Duration) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.rnd.Int63n(int64(delay)))
}

func (h *httpClient) SetRandAndSleepForTest(sleep func(ctx context.Context, d time.Duration) error, seed int64) {
	h.sleepFunc = sleep
	h.mu.Lock()
	h.rnd = rand.New(rand.NewSource(seed))
	h.mu.Unlock()
}
