// Package httpclient is the single outbound HTTP path used by the geocoder and
// weather clients. Every call goes through a circuit breaker and is retried with
// exponential backoff on transport errors, 429 and 5xx responses. The breaker opens
// on consecutive transport failures only.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUpstream is returned when all attempts failed or the breaker is open.
var ErrUpstream = errors.New("upstream request failed")

// statusError is a retryable HTTP status. It does not count against the breaker.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("upstream returned %d", e.code) }

// breakerSuccess reports whether err leaves the breaker's failure count alone. Only
// transport failures (refused connections, resets, DNS) count as outages.
func breakerSuccess(err error) bool {
	var se *statusError
	return err == nil || errors.As(err, &se) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryPolicy configures the retry behavior.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the defaults used for geocoding and weather calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// Option configures a BaseClient.
type Option func(*BaseClient)

// WithSleepFunc overrides the sleep between retries. Tests use it to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *BaseClient) { c.sleepFn = fn }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *BaseClient) { c.retryPolicy = p }
}

// WithBreakerThreshold sets how many consecutive transport failures open the breaker.
func WithBreakerThreshold(n uint32) Option {
	return func(c *BaseClient) { c.breakerThreshold = n }
}

// BaseClient wraps an *http.Client with a circuit breaker and retries.
type BaseClient struct {
	client           *http.Client
	breaker          *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy      RetryPolicy
	breakerThreshold uint32
	userAgent        string
	sleepFn          func(time.Duration)
}

// New creates a BaseClient. name identifies the breaker in state-change logs.
func New(httpClient *http.Client, name, userAgent string, opts ...Option) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &BaseClient{
		client:           httpClient,
		retryPolicy:      DefaultRetryPolicy(),
		breakerThreshold: 5,
		userAgent:        userAgent,
		sleepFn:          time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := c.breakerThreshold
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: breakerSuccess,
	})
	return c
}

// Get issues a GET for url under ctx. Responses other than 429/5xx are returned as-is;
// the caller closes the body and interprets 4xx.
func (c *BaseClient) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	attempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, &statusError{code: r.StatusCode}
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		wait := c.backoff(attempt)
		if resp != nil {
			if ra := retryAfter(resp); ra > 0 {
				wait = min(ra, c.retryPolicy.MaxWait)
			}
			resp.Body.Close()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		// A cancelled or expired context is not retried.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < attempts-1 {
			c.sleepFn(wait)
		}
	}
	return nil, fmt.Errorf("%w: GET %s: %v", ErrUpstream, url, lastErr)
}

func (c *BaseClient) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt)))
	if d > c.retryPolicy.MaxWait {
		d = c.retryPolicy.MaxWait
	}
	return d
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
