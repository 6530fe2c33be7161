package opaclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/opaclient/internal/telemetry"
	"github.com/meigma/opaclient/sdk"
)

// BatchResult is the outcome for one key of a batch evaluation.
// Exactly one of Result and Err is meaningful.
type BatchResult[Res any] struct {
	Result Res
	Err    *ServerError
}

// OK reports whether the key evaluated successfully.
func (r BatchResult[Res]) OK() bool {
	return r.Err == nil
}

// BatchResults maps each input key to its outcome.
type BatchResults[Res any] map[string]BatchResult[Res]

// Failed returns the keys whose evaluation failed, sorted.
func (b BatchResults[Res]) Failed() []string {
	var keys []string
	for key, r := range b {
		if !r.OK() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// EvaluateBatch evaluates the policy at path once per keyed input.
//
// The result has exactly the keys of inputs. Failed keys carry a
// [ServerError] unless [WithRejectErrors] is set, in which case the first
// failure is returned as the error.
//
// With [WithFallback], a 404 from the batch endpoint makes the Client
// evaluate each input with its own request, now and for all later calls that
// allow fallback. Without it, the 404 is returned; see [IsBatchUnsupported].
func EvaluateBatch[Res any](ctx context.Context, c *Client, path string, inputs map[string]any, opts ...RequestOption) (BatchResults[Res], error) {
	rc := newRequestConfig(opts)

	ctx, span := c.telemetry.Start(ctx, telemetry.OpEvaluateBatch, path)
	span.SetAttributes(telemetry.AttrBatchSize.Int(len(inputs)))
	items, mode, err := c.batchItems(ctx, path, resolveInputs(inputs), rc)
	span.SetAttributes(telemetry.AttrBatchMode.String(mode))

	var out BatchResults[Res]
	if err == nil {
		out, err = reconcile[Res](items, rc)
	}
	span.End(ctx, err)
	return out, err
}

// EvaluateBatch is the untyped form of the package-level [EvaluateBatch].
func (c *Client) EvaluateBatch(ctx context.Context, path string, inputs map[string]any, opts ...RequestOption) (BatchResults[Result], error) {
	return EvaluateBatch[Result](ctx, c, path, inputs, opts...)
}

const (
	batchModeNative   = "native"
	batchModeFallback = "fallback"
)

// batchItems collects the raw per-key outcomes, from the batch endpoint or
// from individual calls.
func (c *Client) batchItems(ctx context.Context, path string, inputs map[string]any, rc *requestConfig) (map[string]sdk.BatchItem, string, error) {
	if rc.fallback && c.batchUnsupported.Load() {
		items, err := c.evaluateEach(ctx, path, inputs, rc)
		return items, batchModeFallback, err
	}

	resp, err := c.sdk.ExecuteBatchPolicyWithInput(ctx, path, inputs, rc.sdkOpts...)
	if err == nil {
		return c.matchKeys(path, inputs, resp.Responses), batchModeNative, nil
	}
	if !rc.fallback || !sdk.IsNotFound(err) {
		return nil, batchModeNative, err
	}

	if c.batchUnsupported.CompareAndSwap(false, true) {
		c.logger.Info("batch endpoint unsupported, evaluating inputs individually",
			slog.String("server", c.ServerURL()),
			slog.String("path", path))
		c.telemetry.RecordFallback(ctx, path)
	}
	items, err := c.evaluateEach(ctx, path, inputs, rc)
	return items, batchModeFallback, err
}

// matchKeys returns exactly one item per input key. Keys missing from the
// server's answer are undefined; keys it added are dropped.
func (c *Client) matchKeys(path string, inputs map[string]any, responses map[string]sdk.BatchItem) map[string]sdk.BatchItem {
	items := make(map[string]sdk.BatchItem, len(inputs))
	for key := range inputs {
		item, ok := responses[key]
		if !ok {
			item = sdk.ResultItem(nil)
		}
		items[key] = item
	}
	for key := range responses {
		if _, ok := inputs[key]; !ok {
			c.logger.Debug("ignoring batch response for unknown key",
				slog.String("path", path),
				slog.String("key", key))
		}
	}
	return items
}

// evaluateEach evaluates every input with its own request, concurrently.
func (c *Client) evaluateEach(ctx context.Context, path string, inputs map[string]any, rc *requestConfig) (map[string]sdk.BatchItem, error) {
	var (
		mu    sync.Mutex
		items = make(map[string]sdk.BatchItem, len(inputs))
	)

	g := new(errgroup.Group)
	gctx := ctx
	if rc.rejectErrors {
		g, gctx = errgroup.WithContext(ctx)
	}
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for key, input := range inputs {
		g.Go(func() error {
			resp, err := c.sdk.ExecutePolicyWithInput(gctx, path, input, rc.sdkOpts...)

			var item sdk.BatchItem
			switch {
			case err == nil:
				item = sdk.ResultItem(resp)
			case rc.rejectErrors:
				return err
			default:
				c.logger.Debug("batch input failed",
					slog.String("path", path),
					slog.String("key", key),
					slog.Any("error", err))
				item = sdk.ErrorItem(fallbackError(err))
			}

			mu.Lock()
			items[key] = item
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// fallbackError reports a failed individual call the way the batch endpoint
// reports a failed item.
func fallbackError(err error) *sdk.ServerError {
	var serr *sdk.ServerError
	if errors.As(err, &serr) {
		out := *serr
		out.Errors = slices.Clone(serr.Errors)
		out.HTTPStatusCode = "500"
		return &out
	}
	return &sdk.ServerError{
		Code:           "internal_error",
		Message:        err.Error(),
		HTTPStatusCode: "500",
	}
}

// reconcile applies the result adapter to every successful item. Under
// rejectErrors the failed item with the lowest key is returned as the error.
func reconcile[Res any](items map[string]sdk.BatchItem, rc *requestConfig) (BatchResults[Res], error) {
	if rc.rejectErrors {
		keys := make([]string, 0, len(items))
		for key := range items {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if item := items[key]; item.Kind == sdk.BatchItemError {
				return nil, itemError(item)
			}
		}
	}

	out := make(BatchResults[Res], len(items))
	for key, item := range items {
		if item.Kind == sdk.BatchItemError {
			out[key] = BatchResult[Res]{Err: itemError(item)}
			continue
		}

		var raw json.RawMessage
		if item.Response != nil {
			raw = item.Response.Result
		}
		res, err := decodeResult[Res](raw, rc)
		if err != nil {
			return nil, err
		}
		out[key] = BatchResult[Res]{Result: res}
	}
	return out, nil
}

func itemError(item sdk.BatchItem) *ServerError {
	if item.Error == nil {
		return &ServerError{Code: "internal_error", HTTPStatusCode: "500"}
	}
	return item.Error
}
