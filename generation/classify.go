package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/brandforge/brandforge/errors"
)

// FailureCode classifies a generation failure. Retryable codes are transient
// infrastructure signals; non-retryable ones mean the request itself can never
// succeed as submitted.
type FailureCode string

const (
	FailureTimeout        FailureCode = "timeout"
	FailureRateLimited    FailureCode = "rate_limited"
	FailureUnavailable    FailureCode = "unavailable"
	FailureInternal       FailureCode = "internal"
	FailureContentBlocked FailureCode = "content_blocked"
	FailureInvalidRequest FailureCode = "invalid_request"
	FailureUnknown        FailureCode = "unknown"
)

// Retryable reports whether a failure with this code is worth one more full
// attempt. Unknown failures are treated as transient.
func (c FailureCode) Retryable() bool {
	switch c {
	case FailureContentBlocked, FailureInvalidRequest:
		return false
	default:
		return true
	}
}

// BackendError is a structured failure from a generation backend: an HTTP
// status, the backend's own error code if it sent one, and a message.
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Message)
}

// Classify categorizes an error from a generation attempt into a FailureCode.
// Structured backend errors are classified by code and status; everything else
// falls back to message patterns.
func Classify(err error) FailureCode {
	if err == nil {
		return FailureUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errors.ErrTimeout) {
		return FailureTimeout
	}
	if errors.Is(err, errors.ErrServiceUnavailable) {
		return FailureUnavailable
	}

	var be *BackendError
	if errors.As(err, &be) {
		return classifyBackend(be)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "deadline exceeded") || strings.Contains(errLower, "timed out") || strings.Contains(errLower, "timeout"):
		return FailureTimeout
	case strings.Contains(errLower, "rate limit") || strings.Contains(errLower, "too many requests"):
		return FailureRateLimited
	case strings.Contains(errLower, "unavailable") || strings.Contains(errLower, "connection refused") || strings.Contains(errLower, "circuit breaker"):
		return FailureUnavailable
	case strings.Contains(errLower, "content") && (strings.Contains(errLower, "blocked") || strings.Contains(errLower, "safety") || strings.Contains(errLower, "moderation")):
		return FailureContentBlocked
	case strings.Contains(errLower, "invalid") || strings.Contains(errLower, "validation"):
		return FailureInvalidRequest
	case strings.Contains(errLower, "internal server error"):
		return FailureInternal
	default:
		return FailureUnknown
	}
}

func classifyBackend(be *BackendError) FailureCode {
	switch strings.ToLower(be.Code) {
	case "rate_limited", "rate_limit_exceeded":
		return FailureRateLimited
	case "unavailable", "overloaded":
		return FailureUnavailable
	case "content_blocked", "content_policy_violation", "safety":
		return FailureContentBlocked
	case "invalid_request", "invalid_argument":
		return FailureInvalidRequest
	case "timeout", "deadline_exceeded":
		return FailureTimeout
	case "internal", "internal_error":
		return FailureInternal
	}

	switch {
	case be.Status == 429:
		return FailureRateLimited
	case be.Status == 400 || be.Status == 422:
		return FailureInvalidRequest
	case be.Status == 408 || be.Status == 504:
		return FailureTimeout
	case be.Status == 503:
		return FailureUnavailable
	case be.Status >= 500:
		return FailureInternal
	default:
		return FailureUnknown
	}
}
