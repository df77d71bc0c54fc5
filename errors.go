package renteasy

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrNotAuthenticated is returned when an operation requires a session
	// but no token is available.
	ErrNotAuthenticated = errors.New("renteasy: not authenticated")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("renteasy: circuit open")

	// ErrRateLimited is returned when a request is denied by the local rate limiter
	ErrRateLimited = errors.New("renteasy: rate limited")
)

// ErrorKind identifies one member of the closed error taxonomy. Callers
// switch on Kind, never on the shape of the underlying failure.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "Network"
	KindTimeout        ErrorKind = "Timeout"
	KindAuthentication ErrorKind = "Authentication"
	KindAuthorization  ErrorKind = "Authorization"
	KindValidation     ErrorKind = "Validation"
	KindNotFound       ErrorKind = "NotFound"
	KindRateLimit      ErrorKind = "RateLimit"
	KindConflict       ErrorKind = "Conflict"
	KindServer         ErrorKind = "Server"
	KindUnknown        ErrorKind = "Unknown"
)

// RecoveryStrategy is a machine-actionable hint telling the caller how a
// failure of this kind is normally recovered.
type RecoveryStrategy string

const (
	RecoverRetry        RecoveryStrategy = "retry"
	RecoverRefreshToken RecoveryStrategy = "refresh-token"
	RecoverUserAction   RecoveryStrategy = "user-action"
	RecoverFallback     RecoveryStrategy = "fallback"
)

// APIError is the typed error surfaced for every failed request. It is
// immutable once constructed by the classifier; the executor only annotates
// request context fields (RequestID, Method, Path, Attempt) before returning.
type APIError struct {
	Kind        ErrorKind
	Message     string
	UserMessage string
	StatusCode  int
	Retryable   bool
	Recovery    RecoveryStrategy

	// RetryAfter is a server-supplied delay hint (RateLimit), zero when absent.
	RetryAfter time.Duration

	// Fields carries field-level validation messages (Validation only).
	Fields map[string][]string

	RequestID string
	Method    string
	Path      string
	Attempt   int

	Cause error
}

// Error implements error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 1 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}

	return false
}

// AsAPIError extracts an *APIError from err, or wraps err as an Unknown
// error so that every failure surfaced by the client carries the taxonomy.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		Kind:        KindUnknown,
		Message:     err.Error(),
		UserMessage: userMessageFor(KindUnknown),
		StatusCode:  500,
		Retryable:   true,
		Recovery:    RecoverRetry,
		Cause:       err,
	}
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *APIError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	info += fmt.Sprintf("User Message: %s\n", e.UserMessage)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.Path != "" {
		info += fmt.Sprintf("Path: %s\n", e.Path)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	info += fmt.Sprintf("Retryable: %t\n", e.Retryable)
	info += fmt.Sprintf("Recovery: %s\n", e.Recovery)
	if e.RetryAfter > 0 {
		info += fmt.Sprintf("Retry After: %v\n", e.RetryAfter)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d\n", e.Attempt)
	}
	if len(e.Fields) > 0 {
		info += fmt.Sprintf("Fields: %v\n", e.Fields)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
