package delivery

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kbukum/gokit/resilience"
)

// statusError is a non-2xx callback response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("callback returned %d", e.status)
	}
	return fmt.Sprintf("callback returned %d: %s", e.status, e.body)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retryConfig maps the policy onto an exponential schedule: initial * 2^(n-1),
// jittered by ±Jitter and capped at MaxBackoff.
func retryConfig(p Policy, attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: p.InitialBackoff,
		MaxBackoff:     p.MaxBackoff,
		BackoffFactor:  2,
		Jitter:         p.Jitter,
		RetryIf:        retryable,
	}
}

// statusOf returns the HTTP status carried by err, or zero when no response
// was received.
func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

// retryable retries network failures, 408, 429 and 5xx. An attempt timeout
// counts as a network failure; caller cancellation is handled by Retry.
func retryable(err error) bool {
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	switch status := statusOf(err); {
	case status == 0:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
