// Package opaclient is a high-level client for the Open Policy Agent REST API.
//
// It evaluates named policies with optional input and decodes the decision
// into a Go type. Single, default and batched evaluation are supported; batch
// evaluation can fall back to one call per input against servers that lack
// the batch endpoint.
//
// # Quick Start
//
// Evaluate a rule:
//
//	c, err := opaclient.New("http://localhost:8181",
//	    opaclient.WithHeader("Authorization", "Bearer "+token),
//	)
//	if err != nil {
//	    return err
//	}
//	allowed, err := opaclient.Evaluate[bool](ctx, c, "authz/allow",
//	    opaclient.WithInput(map[string]any{"user": "alice"}),
//	)
//
// Without [WithInput] the policy is evaluated with a GET request and no input
// document. [Client.Evaluate] is the untyped form.
//
// # Result Mapping
//
// By default the decision JSON is decoded into the requested type. Use
// [WithFromResult] to shape the decoded value yourself:
//
//	n, err := opaclient.Evaluate[int](ctx, c, "limits/max",
//	    opaclient.WithFromResult(func(r opaclient.Result) (int, error) {
//	        return len(r.([]any)), nil
//	    }),
//	)
//
// # Batch Evaluation
//
// [EvaluateBatch] sends keyed inputs to the batch endpoint:
//
//	res, err := opaclient.EvaluateBatch[bool](ctx, c, "authz/allow", inputs,
//	    opaclient.WithFallback(true),
//	)
//
// Results may be mixed: failed keys carry a [ServerError] unless
// [WithRejectErrors] is set. With [WithFallback], a 404 from the batch
// endpoint switches the Client to per-input evaluation for the rest of its
// life.
package opaclient
