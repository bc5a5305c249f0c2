// Package polyclient provides the shared resty HTTP client and rate
// limiter used by the identity resolver, activity fetcher, and book
// HTTP fallback probe. Centralizing client construction keeps retry,
// timeout, and rate-limit policy consistent across every REST call this
// engine makes.
package polyclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps a resty HTTP client shared across REST collaborators, plus
// a token-bucket limiter bounding the book-probe endpoint specifically
// (profile search and activity pulls are already bounded by the
// identity/activity call sites themselves — one-shot and debounced,
// respectively).
type Client struct {
	HTTP *resty.Client
	Book *TokenBucket
}

// New builds the shared client. timeout and retry settings mirror the
// teacher's exchange.Client construction.
func New() *Client {
	http := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{
		HTTP: http,
		Book: NewTokenBucket(150, 15),
	}
}

// GetJSON performs a GET against url with the given query params and
// decodes the JSON response into out. A non-2xx response is a transport
// error, retryable by the caller's own loop (spec.md §7).
func (c *Client) GetJSON(ctx context.Context, url string, query map[string]string, out any) error {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode(), resp.String())
	}
	return nil
}

// TokenBucket implements a token-bucket rate limiter with continuous
// refill, adapted from the teacher's exchange.TokenBucket (same shape,
// generalized to gate HTTP book probes instead of order/cancel calls).
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given capacity and
// refill rate (tokens per second).
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
