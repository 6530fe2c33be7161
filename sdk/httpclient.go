package sdk

import (
	"context"
	"net/http"
	"sync"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BeforeRequestHook may inspect or replace an outgoing request.
// Returning an error aborts the request.
type BeforeRequestHook func(req *http.Request) (*http.Request, error)

// HTTPClient sends requests through a [Doer] after running registered hooks.
//
// A single HTTPClient may be shared by several [Client] values; hooks added
// later apply to all of them.
type HTTPClient struct {
	doer Doer

	mu     sync.RWMutex
	before []BeforeRequestHook
}

// NewHTTPClient wraps doer. A nil doer uses [http.DefaultClient].
func NewHTTPClient(doer Doer) *HTTPClient {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &HTTPClient{doer: doer}
}

// AddBeforeRequestHook registers a hook that runs, in registration order,
// before every request.
func (c *HTTPClient) AddBeforeRequestHook(hook BeforeRequestHook) *HTTPClient {
	if hook == nil {
		return c
	}
	c.mu.Lock()
	c.before = append(c.before, hook)
	c.mu.Unlock()
	return c
}

// Do runs the hooks and sends the request.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	hooks := append([]BeforeRequestHook(nil), c.before...)
	c.mu.RUnlock()

	for _, hook := range hooks {
		next, err := hook(req)
		if err != nil {
			return nil, err
		}
		if next != nil {
			req = next
		}
	}
	return c.doer.Do(req)
}

// HeaderHook returns a hook that sets each header on every request,
// replacing existing values. Headers set for a single call with
// [WithRequestHeader] are left alone.
func HeaderHook(headers map[string]string) BeforeRequestHook {
	hdrs := make(map[string]string, len(headers))
	for k, v := range headers {
		hdrs[k] = v
	}
	return func(req *http.Request) (*http.Request, error) {
		perCall := requestHeaders(req.Context())
		for k, v := range hdrs {
			if _, ok := perCall[http.CanonicalHeaderKey(k)]; ok {
				continue
			}
			req.Header.Set(k, v)
		}
		return req, nil
	}
}

type requestHeadersKey struct{}

// withRequestHeaders records the headers a single call set, so hooks can
// tell them from defaults.
func withRequestHeaders(ctx context.Context, h http.Header) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, requestHeadersKey{}, h)
}

func requestHeaders(ctx context.Context) http.Header {
	h, _ := ctx.Value(requestHeadersKey{}).(http.Header)
	return h
}
