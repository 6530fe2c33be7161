package opaclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meigma/opaclient/internal/telemetry"
	"github.com/meigma/opaclient/sdk"
)

// Evaluate evaluates the policy at path and decodes the decision into Res.
//
// Without [WithInput] the policy is queried with no input document. An
// undefined decision yields [ErrNoResult]. Transport and server errors are
// returned as is, typically as [*APIError].
func Evaluate[Res any](ctx context.Context, c *Client, path string, opts ...RequestOption) (Res, error) {
	rc := newRequestConfig(opts)

	ctx, span := c.telemetry.Start(ctx, telemetry.OpEvaluate, path)
	res, err := evaluate[Res](ctx, c, path, rc)
	span.End(ctx, err)
	return res, err
}

func evaluate[Res any](ctx context.Context, c *Client, path string, rc *requestConfig) (Res, error) {
	var zero Res

	var (
		resp *sdk.PolicyResponse
		err  error
	)
	if rc.hasInput {
		resp, err = c.sdk.ExecutePolicyWithInput(ctx, path, resolveInput(rc.input), rc.sdkOpts...)
	} else {
		resp, err = c.sdk.ExecutePolicy(ctx, path, rc.sdkOpts...)
	}
	if err != nil {
		c.logger.Debug("policy evaluation failed",
			slog.String("path", path),
			slog.Any("error", err))
		return zero, err
	}
	if !resp.HasResult() {
		return zero, fmt.Errorf("%w: %s", ErrNoResult, path)
	}
	return decodeResult[Res](resp.Result, rc)
}

// EvaluateDefault evaluates the server's default decision, configured with
// the --set=default_decision flag of OPA. Without [WithInput] an empty
// object is sent.
func EvaluateDefault[Res any](ctx context.Context, c *Client, opts ...RequestOption) (Res, error) {
	rc := newRequestConfig(opts)

	ctx, span := c.telemetry.Start(ctx, telemetry.OpEvaluateDefault, "")
	res, err := evaluateDefault[Res](ctx, c, rc)
	span.End(ctx, err)
	return res, err
}

func evaluateDefault[Res any](ctx context.Context, c *Client, rc *requestConfig) (Res, error) {
	var zero Res

	var input any = map[string]any{}
	if rc.hasInput {
		input = resolveInput(rc.input)
	}
	resp, err := c.sdk.ExecuteDefaultPolicyWithInput(ctx, input, rc.sdkOpts...)
	if err != nil {
		return zero, err
	}
	if len(resp.Result) == 0 {
		return zero, ErrNoResult
	}
	return decodeResult[Res](resp.Result, rc)
}

// Evaluate is the untyped form of the package-level [Evaluate].
func (c *Client) Evaluate(ctx context.Context, path string, opts ...RequestOption) (Result, error) {
	return Evaluate[Result](ctx, c, path, opts...)
}

// EvaluateDefault is the untyped form of the package-level [EvaluateDefault].
func (c *Client) EvaluateDefault(ctx context.Context, opts ...RequestOption) (Result, error) {
	return EvaluateDefault[Result](ctx, c, opts...)
}
