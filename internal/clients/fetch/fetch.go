// Package fetch wraps outbound HTTP with the protections every data source
// client needs: a sliding-window rate limiter, a circuit breaker, bounded
// retries with exponential backoff, and per-request timeouts.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/ratelimit"
)

// Sentinel errors the collection orchestrator maps to outcome categories.
var (
	// ErrRateLimited is returned on HTTP 429 or when the local budget is
	// exhausted and the context expires before a slot frees.
	ErrRateLimited = errors.New("rate limited")
	// ErrSourceUnavailable is returned on 5xx responses, network failures,
	// and an open circuit breaker.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrNotFound is returned on HTTP 404.
	ErrNotFound = errors.New("not found")
)

const (
	defaultTimeout = 15 * time.Second
	maxAttempts    = 3
	baseBackoff    = 500 * time.Millisecond
)

// Client is one source's protected HTTP client.
type Client struct {
	name    string
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New builds a protected client for one source. The rate limit comes from
// the methodology's per-source budgets.
func New(name string, limit config.RateLimit, log zerolog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: ratelimit.New(limit.MaxRequests, time.Duration(limit.WindowSeconds)*time.Second),
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With().Str("client", name).Logger(),
	}
}

// Get performs a protected GET and returns the response body. Retries cover
// transient failures; 429 and 404 return immediately with their sentinel.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: local budget for %s: %v", ErrRateLimited, c.name, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retryable, err := c.once(ctx, url, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("request failed, retrying")
	}
	return nil, lastErr
}

// GetJSON performs a protected GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", c.name, err)
	}
	return nil
}

// once runs a single attempt through the breaker. The bool reports whether
// the failure is worth retrying.
func (c *Client) once(ctx context.Context, url string, headers map[string]string) ([]byte, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: reading body: %v", ErrSourceUnavailable, err)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s returned 429", ErrRateLimited, c.name)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s returned %d", ErrSourceUnavailable, c.name, resp.StatusCode)
		default:
			return nil, fmt.Errorf("%s returned unexpected status %d", c.name, resp.StatusCode)
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, false, fmt.Errorf("%w: circuit open for %s", ErrSourceUnavailable, c.name)
		}
		retryable := errors.Is(err, ErrSourceUnavailable)
		return nil, retryable, err
	}
	return result.([]byte), false, nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Name returns the source name.
func (c *Client) Name() string { return c.name }
