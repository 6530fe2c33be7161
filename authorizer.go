package opaclient

import (
	"context"
	"slices"
)

// Authorizer binds a policy path and options into a reusable decision
// function. Each call evaluates the policy with its argument as input.
//
//	allow := opaclient.Authorizer[Request, bool](c, "authz/allow")
//	ok, err := allow(ctx, req)
func Authorizer[In, Res any](c *Client, path string, opts ...RequestOption) func(context.Context, In) (Res, error) {
	opts = slices.Clone(opts)
	return func(ctx context.Context, in In) (Res, error) {
		callOpts := append(slices.Clone(opts), WithInput(in))
		return Evaluate[Res](ctx, c, path, callOpts...)
	}
}
