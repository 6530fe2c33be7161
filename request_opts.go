package opaclient

import (
	"fmt"
	"reflect"

	"github.com/meigma/opaclient/sdk"
)

// RequestOption configures a single evaluation.
type RequestOption func(*requestConfig)

type requestConfig struct {
	input    any
	hasInput bool

	fromResult func(Result) (any, error)

	fallback     bool
	rejectErrors bool

	sdkOpts []sdk.RequestOption
}

func newRequestConfig(opts []RequestOption) *requestConfig {
	rc := &requestConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(rc)
		}
	}
	return rc
}

// WithInput sets the input document. Values implementing [InputConverter]
// are converted first. A nil input is sent as JSON null; omit the option to
// evaluate without input.
func WithInput(input any) RequestOption {
	return func(rc *requestConfig) {
		rc.input = input
		rc.hasInput = true
	}
}

// WithFromResult maps the decoded decision before it is returned. The mapper
// receives nil for a batch item without a result. Its output must be of the
// type requested from Evaluate, EvaluateDefault or EvaluateBatch, otherwise
// the call fails with [ErrResultType].
func WithFromResult[Res any](fn func(Result) (Res, error)) RequestOption {
	return func(rc *requestConfig) {
		if fn == nil {
			rc.fromResult = nil
			return
		}
		rc.fromResult = func(r Result) (any, error) {
			return fn(r)
		}
	}
}

// WithFallback allows EvaluateBatch to evaluate inputs one at a time when the
// server does not support the batch endpoint.
func WithFallback(enabled bool) RequestOption {
	return func(rc *requestConfig) {
		rc.fallback = enabled
	}
}

// WithRejectErrors makes EvaluateBatch fail if any input fails, instead of
// returning a mixed result.
func WithRejectErrors(enabled bool) RequestOption {
	return func(rc *requestConfig) {
		rc.rejectErrors = enabled
	}
}

// WithRequestOptions passes per-call options to the low-level client, such as
// [sdk.WithProvenance] or [sdk.WithRequestHeader].
func WithRequestOptions(opts ...sdk.RequestOption) RequestOption {
	return func(rc *requestConfig) {
		rc.sdkOpts = append(rc.sdkOpts, opts...)
	}
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

func resultTypeError[Res any](got any) error {
	return fmt.Errorf("%w: got %T, want %s", ErrResultType, got, typeName[Res]())
}
