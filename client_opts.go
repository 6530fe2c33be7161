package opaclient

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/meigma/opaclient/sdk"
)

// Option configures a Client.
type Option func(*Client) error

// --- Transport Options ---

// WithHeaders adds headers to every request, for example Authorization.
// Later calls add to, and override, earlier ones.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) error {
		for k, v := range headers {
			if err := setHeader(c, k, v); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithHeader adds a single header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) error {
		return setHeader(c, key, value)
	}
}

func setHeader(c *Client, key, value string) error {
	if key == "" {
		return errors.New("opaclient: header name must not be empty")
	}
	if c.headers == nil {
		c.headers = make(map[string]string)
	}
	c.headers[key] = value
	return nil
}

// WithHTTPClient sends requests through hc. Headers configured with
// [WithHeaders] are installed on hc as a before-request hook, so hc is
// modified rather than replaced.
func WithHTTPClient(hc *sdk.HTTPClient) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("opaclient: nil HTTP client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithSDKOptions passes options through to the low-level client, such as
// [sdk.WithRetryConfig] or [sdk.WithGzip]. They are applied last.
func WithSDKOptions(opts ...sdk.Option) Option {
	return func(c *Client) error {
		c.sdkOpts = append(c.sdkOpts, opts...)
		return nil
	}
}

// --- Batch Options ---

// WithBatchConcurrency limits the number of in-flight requests when a batch
// is evaluated one input at a time. Zero means no limit.
func WithBatchConcurrency(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("opaclient: batch concurrency must be non-negative")
		}
		c.concurrency = n
		return nil
	}
}

// --- Observability Options ---

// WithLogger sets the logger for client operations.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithTracerProvider sets the tracer provider for evaluation spans and the
// HTTP transport. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) error {
		c.tracerProvider = tp
		return nil
	}
}

// WithMeterProvider sets the meter provider for evaluation metrics.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) error {
		c.meterProvider = mp
		return nil
	}
}
