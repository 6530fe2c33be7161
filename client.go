package opaclient

import (
	"log/slog"
	"maps"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/meigma/opaclient/internal/telemetry"
	"github.com/meigma/opaclient/sdk"
)

// Client evaluates policies on one OPA server.
//
// A Client is safe for concurrent use. It remembers whether the server
// rejected the batch endpoint; see [WithFallback].
type Client struct {
	sdk *sdk.Client

	// Construction-time configuration.
	httpClient     *sdk.HTTPClient
	headers        map[string]string
	sdkOpts        []sdk.Option
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	concurrency    int

	telemetry *telemetry.Telemetry

	// batchUnsupported is set once the batch endpoint answered 404 to a call
	// that allowed fallback. It is never cleared.
	batchUnsupported atomic.Bool
}

// New creates a Client for the server at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, ErrNoServerURL
	}

	c := &Client{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	sdkOpts := []sdk.Option{sdk.WithLogger(c.logger)}
	if c.tracerProvider != nil {
		sdkOpts = append(sdkOpts, sdk.WithTracerProvider(c.tracerProvider))
	}
	if c.httpClient != nil {
		sdkOpts = append(sdkOpts, sdk.WithHTTPClient(c.httpClient))
	}
	sdkOpts = append(sdkOpts, c.sdkOpts...)

	low, err := sdk.New(serverURL, sdkOpts...)
	if err != nil {
		return nil, err
	}
	if len(c.headers) > 0 {
		// Mutates a caller-supplied HTTPClient so its other hooks keep running.
		low.HTTPClient().AddBeforeRequestHook(sdk.HeaderHook(c.headers))
	}

	c.sdk = low
	c.telemetry = telemetry.New(c.tracerProvider, c.meterProvider)
	return c, nil
}

// SDK returns the low-level client used for requests.
func (c *Client) SDK() *sdk.Client {
	return c.sdk
}

// ServerURL returns the configured server URL.
func (c *Client) ServerURL() string {
	return c.sdk.ServerURL()
}

// Headers returns a copy of the headers added to every request.
func (c *Client) Headers() map[string]string {
	return maps.Clone(c.headers)
}

// BatchSupported reports whether the Client still uses the batch endpoint
// for calls that allow fallback.
func (c *Client) BatchSupported() bool {
	return !c.batchUnsupported.Load()
}
