package renteasy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/renteasy/client-go/internal/backoff"
)

// Client is the resilient API client underlying the RentEasy data layer. It
// layers auth token lifecycle, response caching with deduplication, retries
// with backoff and typed error classification around a standard net/http
// Client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	tokens  *TokenStore
	cache   *Cache
	monitor *Monitor
	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   backoff.Strategy
	delays            delayCalculator

	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker

	transformKeys   bool
	validationError error
}

type delayCalculator interface {
	Delay(attempt int) time.Duration
}

// New constructs a Client for the given API base URL using the provided
// functional options. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:             NewCache(),
		monitor:           NewMonitor(defaultMonitorCapacity),
		debug:             DefaultDebugConfig(),
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		transformKeys:     true,
	}

	for _, option := range options {
		option(client)
	}

	if client.tokens == nil {
		client.tokens = NewTokenStore(nil)
	}
	if client.delays == nil {
		client.delays = newDefaultDelays(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET request. Enable read-through caching per request with
// WithRequestCache.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

// Post performs a POST request and invalidates cached reads for the
// affected resource family.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts)
}

// Put performs a PUT request and invalidates cached reads for the affected
// resource family.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts)
}

// Delete performs a DELETE request and invalidates cached reads for the
// affected resource family.
func (c *Client) Delete(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, body, opts)
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts []RequestOption) (*Response, error) {
	cfg := &requestConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	requestID := ""
	if c.debug != nil && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request", "requestID", requestID, "method", method, "path", path)
	}

	if !cfg.skipMonitoring {
		c.metrics.RecordRequestStart(method, path)
		defer c.metrics.RecordRequestEnd(method, path)
	}

	if method == http.MethodGet && cfg.useCache && c.cache != nil {
		return c.doCached(ctx, method, path, cfg, requestID)
	}

	resp, err := c.execute(ctx, method, path, body, cfg, requestID)
	if err != nil {
		return nil, err
	}

	if method != http.MethodGet {
		c.invalidateResourceFamily(path, requestID)
	}
	return resp, nil
}

// doCached serves a GET through the response cache: live entries are
// returned directly, concurrent misses for the same key collapse into one
// fetch.
func (c *Client) doCached(ctx context.Context, method, path string, cfg *requestConfig, requestID string) (*Response, error) {
	key := cacheKey(method, path)

	result, err := c.cache.GetOrFetch(ctx, key, func(fetchCtx context.Context) (any, error) {
		return c.execute(fetchCtx, method, path, nil, cfg, requestID)
	}, FetchOptions{
		TTL:   cfg.cacheTTL,
		Tags:  cfg.cacheTags,
		Force: cfg.forceRefresh,
	})
	if err != nil {
		return nil, err
	}

	resp := result.Value.(*Response)

	if !cfg.skipMonitoring {
		if result.FromCache {
			c.metrics.RecordCacheHit(method, path)
		} else {
			c.metrics.RecordCacheMiss(method, path)
		}
		if result.Shared {
			c.metrics.RecordDedupShared(method, path)
		}
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("cache lookup", "requestID", requestID, "key", key,
			"hit", result.FromCache, "shared", result.Shared)
	}

	if result.FromCache || result.Shared {
		// Hand out a copy so callers see an accurate FromCache flag without
		// mutating the stored response.
		hit := *resp
		hit.FromCache = result.FromCache
		return &hit, nil
	}
	return resp, nil
}

// execute runs the retry state machine for one logical request. Transient
// failures are retried with backoff; a 401 triggers at most one shared
// refresh-then-retry cycle. Only the terminal failure is surfaced.
func (c *Client) execute(ctx context.Context, method, path string, body any, cfg *requestConfig, requestID string) (*Response, error) {
	payload, err := c.encodeBody(body, cfg)
	if err != nil {
		encErr := newAPIError(KindValidation, "failed to encode request body", err)
		annotate(encErr, requestID, method, path, 0)
		return nil, encErr
	}

	authRetried := false
	retries := 0
	for {
		resp, attemptErr := c.attempt(ctx, method, path, payload, cfg, requestID, retries)
		if attemptErr == nil {
			return resp, nil
		}

		apiErr := AsAPIError(attemptErr)
		annotate(apiErr, requestID, method, path, retries+1)

		if !cfg.skipMonitoring {
			c.metrics.RecordError(apiErr.Kind, method, path)
		}

		if apiErr.Kind == KindAuthentication && !authRetried {
			authRetried = true
			if c.refreshAndRetry(ctx, requestID, cfg) {
				continue
			}
			// Refresh failed (or was impossible); the store has cleared the
			// session. No further retries make sense.
			apiErr.Retryable = false
			return nil, apiErr
		}

		if !apiErr.Retryable || retries >= c.retryCeiling(apiErr.Kind) {
			return nil, apiErr
		}

		delay := apiErr.RetryAfter
		if delay <= 0 {
			delay = c.delays.Delay(retries)
		}
		retries++

		if !cfg.skipMonitoring {
			c.metrics.RecordRetry(method, path, retries)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("scheduling retry", "requestID", requestID, "attempt", retries,
				"delay", delay, "kind", apiErr.Kind)
		}

		select {
		case <-ctx.Done():
			ctxErr := Classify(nil, nil, ctx.Err())
			annotate(ctxErr, requestID, method, path, retries)
			return nil, ctxErr
		case <-time.After(delay):
		}
	}
}

// refreshAndRetry runs the shared refresh cycle, reporting whether the
// original request should be reissued. Concurrent 401s collapse into a
// single refresh call inside the token store.
func (c *Client) refreshAndRetry(ctx context.Context, requestID string, cfg *requestConfig) bool {
	if c.tokens == nil || c.tokens.RefreshToken() == "" {
		return false
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Info("access token rejected, refreshing", "requestID", requestID)
	}

	_, err := c.tokens.Refresh(ctx)
	if !cfg.skipMonitoring {
		if err != nil {
			c.metrics.RecordTokenRefresh("failure")
		} else {
			c.metrics.RecordTokenRefresh("success")
		}
	}
	return err == nil
}

// attempt performs a single transport call and classifies its outcome.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, cfg *requestConfig, requestID string, retryCount int) (*Response, error) {
	if c.rateLimiter != nil {
		if !c.rateLimiter.Allow() {
			return nil, newAPIError(KindRateLimit, "local rate limit exceeded", ErrRateLimited)
		}
		if !cfg.skipMonitoring {
			c.metrics.RecordRateLimiterTokens(c.rateLimiter.Tokens())
		}
	}
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, newAPIError(KindServer, "service unavailable", ErrCircuitOpen)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		reqErr := newAPIError(KindValidation, "failed to build request", err)
		return nil, reqErr
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		c.recordAttempt(cfg, RequestMetric{
			ID: requestID, Method: method, Path: path,
			Start: start, End: time.Now(), RetryCount: retryCount, Err: err.Error(),
		})
		return nil, Classify(nil, nil, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		c.recordAttempt(cfg, RequestMetric{
			ID: requestID, Method: method, Path: path,
			Start: start, End: time.Now(), Status: httpResp.StatusCode,
			RetryCount: retryCount, Err: err.Error(),
		})
		return nil, Classify(nil, nil, err)
	}

	metric := RequestMetric{
		ID: requestID, Method: method, Path: path,
		Start: start, End: time.Now(), Status: httpResp.StatusCode,
		RetryCount: retryCount,
	}

	if httpResp.StatusCode >= 400 {
		apiErr := Classify(httpResp, respBody, nil)
		metric.Err = string(apiErr.Kind)
		c.recordAttempt(cfg, metric)

		if c.circuitBreaker != nil {
			if httpResp.StatusCode >= 500 {
				c.circuitBreaker.RecordFailure()
			} else {
				c.circuitBreaker.RecordSuccess()
			}
		}
		return nil, apiErr
	}

	c.recordAttempt(cfg, metric)
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}

	data := json.RawMessage(respBody)
	if c.transformKeys && !cfg.skipTransform && len(respBody) > 0 {
		if converted, convErr := FromWire(respBody); convErr == nil {
			data = converted
		}
	}

	return &Response{
		Data:   data,
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
	}, nil
}

func (c *Client) recordAttempt(cfg *requestConfig, metric RequestMetric) {
	if cfg.skipMonitoring || c.monitor == nil {
		return
	}
	c.monitor.Record(metric)
	c.metrics.RecordRequest(metric.Method, metric.Path, metric.Status, metric.Duration())
}

func (c *Client) encodeBody(body any, cfg *requestConfig) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if c.transformKeys && !cfg.skipTransform {
		return ToWire(payload)
	}
	return payload, nil
}

// retryCeiling bounds retries per error kind: Unknown failures are retried
// once, rate limits twice, everything else up to the configured maximum.
func (c *Client) retryCeiling(kind ErrorKind) int {
	ceiling := c.maxRetries
	switch kind {
	case KindUnknown:
		if ceiling > 1 {
			ceiling = 1
		}
	case KindRateLimit:
		if ceiling > 2 {
			ceiling = 2
		}
	}
	return ceiling
}

// invalidateResourceFamily drops cached reads for the resource family a
// mutation touched, derived from the path's leading segment.
func (c *Client) invalidateResourceFamily(path, requestID string) {
	if c.cache == nil {
		return
	}
	family := leadingSegment(path)
	if family == "" {
		return
	}

	removed := c.cache.InvalidateByTag(family)
	removed += c.cache.Invalidate(http.MethodGet + ":/" + family + "*")

	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("invalidated resource family", "requestID", requestID,
			"family", family, "removed", removed)
	}
	c.metrics.RecordCacheSize(c.cache.Len())
}

func cacheKey(method, path string) string {
	return method + ":" + path
}

func leadingSegment(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}

func annotate(err *APIError, requestID, method, path string, attempt int) {
	if err == nil {
		return
	}
	err.RequestID = requestID
	err.Method = method
	err.Path = path
	err.Attempt = attempt
}

// IsAuthenticated reports whether a non-expired access token is present.
func (c *Client) IsAuthenticated() bool {
	return c.tokens != nil && c.tokens.AccessToken() != "" && !c.tokens.Expired()
}

// SetTokens installs a token pair obtained from a login or refresh response.
func (c *Client) SetTokens(record TokenRecord) {
	c.tokens.SetTokens(record)
}

// Logout clears the session: tokens, cookie mirror and persisted profile.
func (c *Client) Logout() {
	c.tokens.Clear()
}

// OnAuthChange registers a callback for token changes; the returned function
// unsubscribes it.
func (c *Client) OnAuthChange(fn TokenChangeFunc) func() {
	return c.tokens.OnChange(fn)
}

// CurrentUser returns the authenticated user from the persisted profile
// blob, falling back to decoded token claims. Returns ErrNotAuthenticated
// when no session exists.
func (c *Client) CurrentUser() (*User, error) {
	if c.tokens == nil {
		return nil, ErrNotAuthenticated
	}

	if blob, ok := c.tokens.storage.Get(StorageKeyUserProfile); ok && blob != "" {
		var user User
		if err := json.Unmarshal([]byte(blob), &user); err == nil {
			return &user, nil
		}
	}

	token := c.tokens.AccessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	claims, err := DecodeClaims(token)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
	}, nil
}

// StoreUserProfile persists the user profile blob consulted by CurrentUser.
func (c *Client) StoreUserProfile(user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	c.tokens.storage.Set(StorageKeyUserProfile, string(data))
	return nil
}

// Tokens exposes the underlying token store.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// InvalidateCache deletes cached entries matching pattern (exact key or
// `*` wildcard) and returns the count removed.
func (c *Client) InvalidateCache(pattern string) int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Invalidate(pattern)
}

// InvalidateCacheByTag deletes cached entries carrying tag and returns the
// count removed.
func (c *Client) InvalidateCacheByTag(tag string) int {
	if c.cache == nil {
		return 0
	}
	return c.cache.InvalidateByTag(tag)
}

// ClearCache removes all cached entries.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// CacheStats returns a snapshot of cache state.
func (c *Client) CacheStats() CacheStats {
	if c.cache == nil {
		return CacheStats{}
	}
	return c.cache.Stats()
}

// RequestHistory returns the recent request metrics, oldest first.
func (c *Client) RequestHistory() []RequestMetric {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.History()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Close releases background resources (the cache sweeper).
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
