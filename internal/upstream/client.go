package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"treasury-ledger/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// Breaker opens after this many consecutive transient failures on one host.
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 60 * time.Second

	maxBodyBytes = 32 << 20
)

// Checker is implemented by response envelopes that report failures inside a 200 body.
// A transient Check error is retried like a 5xx.
type Checker interface {
	Check() error
}

// Client performs GET requests returning JSON with retries, exponential backoff
// and a circuit breaker per host.
type Client struct {
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	threshold   uint32
	cooldown    time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxAttempts sets the total number of attempts per call.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets the maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithBreaker sets the consecutive-failure threshold and open-state cooldown.
func WithBreaker(threshold uint32, cooldown time.Duration) ClientOption {
	return func(c *Client) {
		c.threshold = threshold
		c.cooldown = cooldown
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new upstream client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		threshold:   DefaultBreakerThreshold,
		cooldown:    DefaultBreakerCooldown,
		logger:      zerolog.Nop(),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "upstream").Logger()
	return c
}

// GetJSON fetches rawURL with query and decodes the JSON body into out.
// service labels logs and metrics. The returned error is always an *Error.
func (c *Client) GetJSON(ctx context.Context, service, rawURL string, query url.Values, out any) error {
	start := time.Now()
	err := c.getJSON(ctx, service, rawURL, query, out)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	observability.RecordUpstreamCall(service, outcome, time.Since(start).Seconds())
	return err
}

func (c *Client) getJSON(ctx context.Context, service, rawURL string, query url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ConfigError(service, fmt.Errorf("invalid url %q", rawURL))
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	target := u.String()
	breaker := c.breakerFor(u.Host)

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return transient(service, 0, ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		body, err := breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, service, target)
		})
		if err == nil {
			err = decode(service, body.([]byte), out)
			if err == nil {
				return nil
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = transient(service, 0, err)
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return transient(service, 0, ctx.Err())
		}
		c.logger.Debug().Err(err).Str("service", service).Int("attempt", attempt+1).Msg("upstream call failed")
	}

	return lastErr
}

// decode unmarshals body into out and runs the envelope check when out implements Checker.
func decode(service string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return permanent(service, http.StatusOK, fmt.Errorf("decode response: %w", err))
	}
	ch, ok := out.(Checker)
	if !ok {
		return nil
	}
	err := ch.Check()
	if err == nil {
		return nil
	}
	var ue *Error
	if !errors.As(err, &ue) {
		return permanent(service, http.StatusOK, err)
	}
	if ue.Service == "" {
		ue.Service = service
	}
	if ue.Status == 0 {
		ue.Status = http.StatusOK
	}
	return ue
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, service, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ConfigError(service, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transient(service, 0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transient(service, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, transient(service, resp.StatusCode, fmt.Errorf("rate limited"))
	case resp.StatusCode >= 500:
		return nil, transient(service, resp.StatusCode, fmt.Errorf("server error: %s", truncate(body)))
	default:
		return nil, permanent(service, resp.StatusCode, fmt.Errorf("unexpected status: %s", truncate(body)))
	}
}

// breakerFor returns the breaker of host, creating it on first use.
// Only transient failures count against the breaker.
func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	threshold := c.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     c.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("upstream breaker state change")
		},
	})
	c.breakers[host] = cb
	return cb
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
