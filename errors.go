package etl

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError indicates the remote API asked us to slow down. The feed
// client retries these internally; one escaping to the caller means the
// retry budget was exhausted.
type RateLimitError struct {
	Wait time.Duration // server-suggested wait, 0 when unknown
	Err  error
}

func (e *RateLimitError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// AuthError indicates rejected credentials. It is fatal for the run: no
// amount of retrying will make the same credentials work.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransformError marks a raw record that could not be normalized. These are
// per-record: the record is skipped and the run continues.
type TransformError struct {
	Kind   string // "post" or "comment"
	ID     string // may be empty when the id itself is missing
	Reason string
}

func (e *TransformError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("transform %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("transform %s %s: %s", e.Kind, e.ID, e.Reason)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
