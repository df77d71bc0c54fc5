package renteasy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// defaultRetryAfter is used for 429 responses that carry no Retry-After hint.
const defaultRetryAfter = time.Second

// Classify maps a raw transport failure or non-2xx response onto the closed
// error taxonomy. It is total: every input produces exactly one *APIError and
// classification itself never fails. Pass err for transport-level failures
// (resp nil) or resp plus the already-read body for protocol failures.
func Classify(resp *http.Response, body []byte, err error) *APIError {
	if resp == nil {
		if isTimeout(err) {
			return newAPIError(KindTimeout, "request timed out", err)
		}
		return newAPIError(KindNetwork, "network request failed", err)
	}

	kind := kindForStatus(resp.StatusCode)
	apiErr := newAPIError(kind, messageFromBody(body, resp.StatusCode), nil)

	// 5xx and unrecognized codes keep the actual status for diagnostics.
	switch kind {
	case KindServer, KindUnknown:
		apiErr.StatusCode = resp.StatusCode
	}

	switch kind {
	case KindRateLimit:
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		if apiErr.RetryAfter == 0 {
			apiErr.RetryAfter = defaultRetryAfter
		}
	case KindValidation:
		apiErr.Fields = fieldErrorsFromBody(body)
	}

	return apiErr
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == 400:
		return KindValidation
	case status == 401:
		return KindAuthentication
	case status == 403:
		return KindAuthorization
	case status == 404:
		return KindNotFound
	case status == 408:
		return KindTimeout
	case status == 409:
		return KindConflict
	case status == 429:
		return KindRateLimit
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindUnknown
	}
}

// kindDefaults carries the per-kind defaults of the taxonomy table:
// status code, retryability and recovery strategy.
var kindDefaults = map[ErrorKind]struct {
	status    int
	retryable bool
	recovery  RecoveryStrategy
}{
	KindNetwork:        {0, true, RecoverRetry},
	KindTimeout:        {408, true, RecoverRetry},
	KindAuthentication: {401, false, RecoverRefreshToken},
	KindAuthorization:  {403, false, RecoverUserAction},
	KindValidation:     {400, false, RecoverUserAction},
	KindNotFound:       {404, false, RecoverFallback},
	KindRateLimit:      {429, true, RecoverRetry},
	KindConflict:       {409, false, RecoverUserAction},
	KindServer:         {500, true, RecoverRetry},
	KindUnknown:        {500, true, RecoverRetry},
}

var userMessages = map[ErrorKind]string{
	KindNetwork:        "Unable to reach the server. Check your connection and try again.",
	KindTimeout:        "The request took too long. Please try again.",
	KindAuthentication: "Your session has expired. Please sign in again.",
	KindAuthorization:  "You don't have permission to do that.",
	KindValidation:     "Some of the information provided is invalid.",
	KindNotFound:       "We couldn't find what you were looking for.",
	KindRateLimit:      "Too many requests. Please wait a moment and try again.",
	KindConflict:       "This conflicts with an existing entry.",
	KindServer:         "Something went wrong on our side. Please try again.",
	KindUnknown:        "Something unexpected happened. Please try again.",
}

func userMessageFor(kind ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

func newAPIError(kind ErrorKind, message string, cause error) *APIError {
	defaults, ok := kindDefaults[kind]
	if !ok {
		defaults = kindDefaults[KindUnknown]
	}
	return &APIError{
		Kind:        kind,
		Message:     message,
		UserMessage: userMessageFor(kind),
		StatusCode:  defaults.status,
		Retryable:   defaults.retryable,
		Recovery:    defaults.recovery,
		Cause:       cause,
	}
}

// isTimeout distinguishes a client-side deadline from plain connectivity
// failure. Both arrive as transport errors with no response.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
// Returns 0 when the header is absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

// errorBody is the error envelope the RentEasy API returns. Errors holds
// field-level validation messages, either a single string or a list per field.
type errorBody struct {
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

func messageFromBody(body []byte, status int) string {
	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func fieldErrorsFromBody(body []byte) map[string][]string {
	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return nil
	}

	fields := make(map[string][]string, len(envelope.Errors))
	for field, raw := range envelope.Errors {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			fields[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			fields[field] = []string{single}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
