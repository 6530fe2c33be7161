package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "opaclient-go"

// API path prefixes, relative to the server URL.
const (
	dataPrefix      = "v1/data"
	batchDataPrefix = "v1/batch/data"
)

// Client issues requests against one OPA server.
type Client struct {
	serverURL *url.URL

	httpClient     *HTTPClient
	timeout        time.Duration
	tracerProvider trace.TracerProvider
	retry          *RetryConfig
	gzip           bool
	userAgent      string
	logger         *slog.Logger
}

// New creates a low-level client for the server at serverURL, for example
// "https://opa.internal:8181". A path prefix ("http://proxy/opa") is kept.
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServerURL, serverURL)
	}

	c := &Client{
		serverURL: u,
		userAgent: DefaultUserAgent,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(c.defaultDoer())
	}
	return c, nil
}

// ServerURL returns the configured server URL.
func (c *Client) ServerURL() string {
	return c.serverURL.String()
}

// HTTPClient returns the HTTP client requests are sent through.
func (c *Client) HTTPClient() *HTTPClient {
	return c.httpClient
}

func (c *Client) defaultDoer() *http.Client {
	var otelOpts []otelhttp.Option
	if c.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(c.tracerProvider))
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport, otelOpts...),
		Timeout:   c.timeout,
	}
}

// endpoint joins the server URL, an API prefix and the caller's policy
// path. The policy path is not re-escaped, so "%2f" inside a segment
// reaches the server as written.
func (c *Client) endpoint(prefix, policyPath string, query url.Values) *url.URL {
	u := *c.serverURL
	raw := strings.TrimSuffix(c.serverURL.EscapedPath(), "/") + "/"
	if prefix != "" {
		raw += prefix
		if policyPath = strings.TrimPrefix(policyPath, "/"); policyPath != "" {
			raw += "/" + policyPath
		}
	}
	setRawPath(&u, raw)
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return &u
}

func setRawPath(u *url.URL, raw string) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		u.Path = raw
		u.RawPath = ""
		return
	}
	u.Path = decoded
	if decoded == raw {
		u.RawPath = ""
	} else {
		u.RawPath = raw
	}
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, body []byte, rc *requestConfig) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(withRequestHeaders(ctx, rc.header), method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("sdk: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if c.gzip {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}
	for key, values := range rc.header {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

// roundTrip performs a single attempt.
func (c *Client) roundTrip(ctx context.Context, method string, u *url.URL, body []byte, rc *requestConfig) (*rawResponse, error) {
	req, err := c.newRequest(ctx, method, u, body, rc)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sdk: read response: %w", err)
	}
	return &rawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// send encodes the body, applies retries and returns the final response.
// Non-2xx statuses are not errors at this level.
func (c *Client) send(ctx context.Context, method string, u *url.URL, body []byte, rc *requestConfig) (*rawResponse, error) {
	if body != nil && c.gzip {
		compressed, err := gzipBytes(body)
		if err != nil {
			return nil, err
		}
		body = compressed
	}

	c.logger.Debug("opa request",
		slog.String("method", method),
		slog.String("url", u.Redacted()))

	cfg := rc.retry
	if cfg == nil {
		cfg = c.retry
	}
	if !cfg.enabled() {
		return c.roundTrip(ctx, method, u, body, rc)
	}

	op := func() (*rawResponse, error) {
		resp, err := c.roundTrip(ctx, method, u, body, rc)
		if err != nil {
			if cfg.RetryConnectionErrors && ctx.Err() == nil {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if cfg.retryStatus(resp.StatusCode) {
			return nil, &retryableStatus{resp: resp}
		}
		return resp, nil
	}

	opts := append(cfg.retryOptions(), backoff.WithNotify(func(err error, next time.Duration) {
		c.logger.Debug("retrying opa request",
			slog.String("url", u.Redacted()),
			slog.Duration("backoff", next),
			slog.Any("error", err))
	}))
	resp, err := backoff.Retry(ctx, op, opts...)
	var rs *retryableStatus
	if errors.As(err, &rs) {
		return rs.resp, nil
	}
	return resp, err
}

// checkResponse converts non-2xx responses to *APIError.
func checkResponse(resp *rawResponse) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}
	if isJSON(apiErr.ContentType) && len(resp.Body) > 0 {
		var serr ServerError
		if err := decodeJSON(resp.Body, &serr); err == nil && (serr.Code != "" || serr.Message != "") {
			apiErr.Server = &serr
		}
	}
	return apiErr
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("sdk: gzip request: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("sdk: gzip request: %w", err)
	}
	return buf.Bytes(), nil
}
