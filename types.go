package renteasy

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the result of a successful request.
type Response struct {
	// Data is the response body, with keys already converted to camelCase
	// unless the request skipped transformation.
	Data json.RawMessage
	// Status is the HTTP status code.
	Status int
	// Header holds the response headers.
	Header http.Header
	// FromCache is true when the response was served from the cache.
	FromCache bool
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// User is the authenticated user as known to the client, backed by decoded
// token claims or the persisted profile blob.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// requestConfig is the per-request behavior assembled from RequestOptions.
type requestConfig struct {
	cacheTTL       time.Duration
	cacheTags      []string
	useCache       bool
	forceRefresh   bool
	skipTransform  bool
	skipMonitoring bool
}

// RequestOption adjusts a single request.
type RequestOption func(*requestConfig)

// WithRequestCache enables read-through caching for this request with the
// given TTL and invalidation tags. Only honored for GET.
func WithRequestCache(ttl time.Duration, tags ...string) RequestOption {
	return func(rc *requestConfig) {
		rc.useCache = true
		rc.cacheTTL = ttl
		rc.cacheTags = tags
	}
}

// WithForceRefresh drops any cached entry for this request before fetching.
func WithForceRefresh() RequestOption {
	return func(rc *requestConfig) {
		rc.forceRefresh = true
	}
}

// WithSkipTransform bypasses key-casing conversion for both the request and
// response body.
func WithSkipTransform() RequestOption {
	return func(rc *requestConfig) {
		rc.skipTransform = true
	}
}

// WithSkipMonitoring suppresses metric recording for this request.
func WithSkipMonitoring() RequestOption {
	return func(rc *requestConfig) {
		rc.skipMonitoring = true
	}
}
