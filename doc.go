// Package renteasy is the Go client core for the RentEasy API. It bundles
// the reliability primitives every caller needs:
//
//   - Token lifecycle: persisted access/refresh pair, cookie mirroring,
//     proactive refresh ahead of expiry, change notifications
//   - In-memory response caching with TTL, tag invalidation and
//     deduplication of concurrent identical fetches
//   - A total error classifier mapping any failure to a typed taxonomy
//     with retry and recovery hints
//   - Retries with exponential backoff + jitter, honoring server
//     Retry-After, with a single collapsed refresh-then-retry on 401
//   - camelCase/snake_case key transformation at the wire boundary
//   - Request history, Prometheus metrics and structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Pluggable storage, cookies, metrics and logging
//
// Typical usage:
//
//	client := renteasy.New("https://api.renteasy.example",
//	    renteasy.WithMaxRetries(3),
//	    renteasy.WithRefreshFunc(refresh),
//	    renteasy.WithMetrics(),
//	)
//	defer client.Close()
//
//	resp, err := client.Get(ctx, "/properties?city=oslo",
//	    renteasy.WithRequestCache(5*time.Minute, "properties"))
//
// Responses carry raw JSON already converted to camelCase keys; decode into
// your own types with Response.Decode. Errors are always *APIError values:
// inspect Kind, Retryable and UserMessage instead of matching strings.
package renteasy
