package sdk

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client used for requests.
// Hooks registered on it run for every request this Client makes.
//
// When set, WithTimeout and WithTracerProvider do not affect the transport.
func WithHTTPClient(hc *HTTPClient) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("sdk: nil HTTP client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the overall timeout of the default HTTP client.
// Zero means no timeout; request contexts still apply.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("sdk: timeout must be non-negative")
		}
		c.timeout = d
		return nil
	}
}

// WithRetryConfig enables retries for every request made by the Client.
// Individual calls may override it with [WithRetries].
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		c.retry = &cfg
		return nil
	}
}

// WithGzip compresses request bodies and marks them with
// Content-Encoding: gzip.
func WithGzip(enabled bool) Option {
	return func(c *Client) error {
		c.gzip = enabled
		return nil
	}
}

// WithUserAgent sets the User-Agent header. Defaults to [DefaultUserAgent].
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithLogger sets a logger for request-level debug output.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithTracerProvider instruments the default HTTP transport with otelhttp
// using tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) error {
		c.tracerProvider = tp
		return nil
	}
}
