package sdk

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultRetryStatusCodes are retried when RetryConfig.StatusCodes is empty.
var DefaultRetryStatusCodes = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryConfig controls retries with exponential backoff.
type RetryConfig struct {
	// MaxTries is the total number of attempts, including the first.
	// Values below 2 disable retries.
	MaxTries uint

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration

	// Multiplier grows the delay after each attempt.
	Multiplier float64

	// MaxElapsedTime stops retrying once exceeded. Zero means no limit.
	MaxElapsedTime time.Duration

	// StatusCodes are the response codes that trigger a retry.
	StatusCodes []int

	// RetryConnectionErrors retries requests that failed before a response
	// was received.
	RetryConnectionErrors bool
}

func (r *RetryConfig) validate() error {
	if r.InitialInterval < 0 || r.MaxInterval < 0 || r.MaxElapsedTime < 0 {
		return errors.New("sdk: retry intervals must be non-negative")
	}
	if r.Multiplier < 0 {
		return errors.New("sdk: retry multiplier must be non-negative")
	}
	return nil
}

func (r *RetryConfig) enabled() bool {
	return r != nil && r.MaxTries > 1
}

func (r *RetryConfig) retryStatus(code int) bool {
	codes := r.StatusCodes
	if len(codes) == 0 {
		codes = DefaultRetryStatusCodes
	}
	return slices.Contains(codes, code)
}

func (r *RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	if r.Multiplier > 0 {
		b.Multiplier = r.Multiplier
	}
	return b
}

func (r *RetryConfig) retryOptions() []backoff.RetryOption {
	// Always set: backoff.Retry caps at 15 minutes unless told otherwise,
	// and treats zero as no limit.
	return []backoff.RetryOption{
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(r.MaxTries),
		backoff.WithMaxElapsedTime(r.MaxElapsedTime),
	}
}

// retryableStatus carries a response whose status asked for a retry, so the
// last one can be reported once attempts run out.
type retryableStatus struct {
	resp *rawResponse
}

func (e *retryableStatus) Error() string {
	return "sdk: retryable status " + http.StatusText(e.resp.StatusCode)
}
