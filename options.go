package renteasy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/renteasy/client-go/internal/backoff"
)

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the base delay for the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff caps the delay between retries.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the exponential growth factor between retries.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = m
	}
}

// WithJitter sets the random jitter fraction applied to backoff delays.
func WithJitter(j float64) Option {
	return func(c *Client) {
		c.jitter = j
	}
}

// WithBackoffStrategy selects the delay strategy used between retries.
func WithBackoffStrategy(s backoff.Strategy) Option {
	return func(c *Client) {
		c.backoffStrategy = s
	}
}

// WithRefreshFunc installs the token refresh callback on the default token
// store. Ignored when WithTokenStore supplied a store.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(c *Client) {
		if c.tokens == nil {
			c.tokens = NewTokenStore(fn)
		}
	}
}

// WithTokenStore replaces the default token store entirely.
func WithTokenStore(ts *TokenStore) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithCache replaces the default response cache. Pass nil to disable
// caching.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		if c.cache != nil {
			c.cache.Close()
		}
		c.cache = cache
	}
}

// WithMonitorCapacity bounds the request metric history.
func WithMonitorCapacity(n int) Option {
	return func(c *Client) {
		c.monitor = NewMonitor(n)
	}
}

// WithMetrics enables Prometheus metrics on the default registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector installs a pre-built metrics collector, typically
// backed by a custom registry.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithLogger installs a structured logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDebug enables verbose logging across all components.
func WithDebug() Option {
	return func(c *Client) {
		cfg := DefaultDebugConfig()
		cfg.Enabled = true
		cfg.LogRequests = true
		cfg.LogRetries = true
		cfg.LogCache = true
		cfg.LogAuth = true
		c.debug = cfg
	}
}

// WithDebugConfig installs fine-grained debug settings.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) {
		c.debug = cfg
	}
}

// WithRateLimiter enables a local token bucket in front of the transport.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithCircuitBreaker enables a circuit breaker in front of the transport.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(cfg)
	}
}

// WithoutKeyTransform disables the camelCase/snake_case boundary transform.
func WithoutKeyTransform() Option {
	return func(c *Client) {
		c.transformKeys = false
	}
}

func newDefaultDelays(c *Client) delayCalculator {
	strategy := c.backoffStrategy
	if strategy == nil {
		strategy = backoff.ExponentialJitter{}
	}
	return backoff.NewCalculator(strategy,
		c.initialBackoff, c.maxBackoff, c.backoffMultiplier, c.jitter)
}

// ValidateConfiguration checks the assembled configuration and returns a
// single error listing every problem found.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.baseURL == "" {
		problems = append(problems, "base URL must not be empty")
	}
	if c.httpClient == nil {
		problems = append(problems, "HTTP client must not be nil")
	}
	if c.maxRetries < 0 {
		problems = append(problems, fmt.Sprintf("max retries must be >= 0, got %d", c.maxRetries))
	}
	if c.initialBackoff <= 0 {
		problems = append(problems, fmt.Sprintf("initial backoff must be positive, got %v", c.initialBackoff))
	}
	if c.maxBackoff < c.initialBackoff {
		problems = append(problems, fmt.Sprintf("max backoff %v must be >= initial backoff %v", c.maxBackoff, c.initialBackoff))
	}
	if c.backoffMultiplier < 1 {
		problems = append(problems, fmt.Sprintf("backoff multiplier must be >= 1, got %g", c.backoffMultiplier))
	}
	if c.jitter < 0 || c.jitter > 1 {
		problems = append(problems, fmt.Sprintf("jitter must be in [0, 1], got %g", c.jitter))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid client configuration: " + strings.Join(problems, "; "))
}
