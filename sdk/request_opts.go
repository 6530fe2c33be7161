package sdk

import (
	"net/http"
	"net/url"
)

// RequestOption configures a single API call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	header http.Header
	query  url.Values
	retry  *RetryConfig
}

func newRequestConfig(opts []RequestOption) *requestConfig {
	rc := &requestConfig{
		header: make(http.Header),
		query:  make(url.Values),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rc)
		}
	}
	return rc
}

// WithRequestHeader sets a header on this call only. It takes precedence
// over headers added to every request by [HeaderHook].
func WithRequestHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		rc.header.Set(key, value)
	}
}

// WithPretty asks the server to indent the response body.
func WithPretty() RequestOption {
	return withFlag("pretty")
}

// WithProvenance asks the server to include build and bundle provenance.
func WithProvenance() RequestOption {
	return withFlag("provenance")
}

// WithMetrics asks the server to include performance metrics.
func WithMetrics() RequestOption {
	return withFlag("metrics")
}

// WithInstrument asks the server to include detailed instrumentation
// metrics. It implies [WithMetrics] on the server side.
func WithInstrument() RequestOption {
	return withFlag("instrument")
}

// WithStrictBuiltinErrors makes built-in function errors fail the
// evaluation instead of yielding undefined.
func WithStrictBuiltinErrors() RequestOption {
	return withFlag("strict-builtin-errors")
}

// WithExplain requests an explanation of the evaluation.
// Valid modes are "notes", "fails", "full" and "debug".
func WithExplain(mode string) RequestOption {
	return func(rc *requestConfig) {
		rc.query.Set("explain", mode)
	}
}

// WithRetries overrides the Client's retry configuration for this call.
func WithRetries(cfg RetryConfig) RequestOption {
	return func(rc *requestConfig) {
		rc.retry = &cfg
	}
}

func withFlag(name string) RequestOption {
	return func(rc *requestConfig) {
		rc.query.Set(name, "true")
	}
}
