package feed

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

type errorKind int

const (
	kindTransient errorKind = iota
	kindRateLimit
	kindAuth
)

// statusCoder is satisfied by errors that carry an HTTP status, such as the
// API wrapper's response errors.
type statusCoder interface {
	StatusCode() int
}

// retryAfterer is satisfied by errors that carry a server-specified wait.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// classify maps an API error to a retry decision and, for rate limits, a
// server-suggested wait when one is available.
func classify(err error) (errorKind, time.Duration) {
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusTooManyRequests:
			return kindRateLimit, retryAfter(err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return kindAuth, 0
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return kindRateLimit, retryAfter(err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "invalid credentials") || strings.Contains(msg, "invalid_grant"):
		return kindAuth, 0
	}

	return kindTransient, 0
}

func retryAfter(err error) time.Duration {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}
