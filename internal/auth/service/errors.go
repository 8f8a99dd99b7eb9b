package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	// ErrAuthenticationFailed covers every credential or token failure: unknown
	// email, wrong password, invalid, expired, forged or replayed tokens.
	ErrAuthenticationFailed = errors.New("invalid credentials")
	// ErrRateLimited matches any *RateLimitedError via errors.Is.
	ErrRateLimited = errors.New("too many attempts")
	// ErrAccountInactive is returned only after the password matched.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidInput wraps validation failures; the message is safe to show.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionNotFound is returned when a session does not exist or belongs to someone else.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotFound is returned when a referenced user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller lacks the role for an operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable is returned when a dependency failed and the operation could not complete.
	ErrUnavailable = errors.New("service temporarily unavailable")
)

// RateLimitedError reports when the caller may retry.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter returns the whole seconds until ResetAt from now, at least 1.
func (e *RateLimitedError) RetryAfter(now time.Time) int {
	secs := int(e.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
