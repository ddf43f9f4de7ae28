// ABOUTME: Typed errors for backend calls and rate limiting
// ABOUTME: Classifies failures into auth, rate-limit, and transient kinds
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/sheetbridge/models"
)

// AuthError means the backend rejected our credentials. It aborts the pass;
// refreshing credentials is the credential provider's job, not the engine's.
type AuthError struct {
	Backend Backend
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth rejected (status %d)", e.Backend, e.Status)
}

// IsAuthError returns true if the error is an AuthError, unwrapping as needed.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// RateLimitError means a call was throttled, either locally by the limiter or
// by the backend. Retryable on the next scheduled trigger, never fatal.
type RateLimitError struct {
	Backend    Backend
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %s", e.Backend, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Backend)
}

// IsRateLimitError returns true if the error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// TransientError wraps a per-record failure worth retrying within the pass,
// such as a network timeout or backend 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransientError returns true if the error is a TransientError.
func IsTransientError(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// failureKind maps an error to its report taxonomy kind.
func failureKind(err error) string {
	switch {
	case IsAuthError(err):
		return models.FailureKindAuth
	case IsRateLimitError(err):
		return models.FailureKindRateLimit
	case IsTransientError(err):
		return models.FailureKindTransient
	default:
		return models.FailureKindContract
	}
}
