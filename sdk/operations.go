package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ExecutePolicy evaluates the document at path without input
// (GET /v1/data/{path}).
func (c *Client) ExecutePolicy(ctx context.Context, path string, opts ...RequestOption) (*PolicyResponse, error) {
	rc := newRequestConfig(opts)
	u := c.endpoint(dataPrefix, path, rc.query)

	resp, err := c.send(ctx, http.MethodGet, u, nil, rc)
	if err != nil {
		return nil, err
	}
	return decodePolicyResponse(resp)
}

// ExecutePolicyWithInput evaluates the document at path against input
// (POST /v1/data/{path}). A nil input is sent as JSON null.
func (c *Client) ExecutePolicyWithInput(ctx context.Context, path string, input any, opts ...RequestOption) (*PolicyResponse, error) {
	body, err := json.Marshal(policyRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("sdk: encode input: %w", err)
	}

	rc := newRequestConfig(opts)
	u := c.endpoint(dataPrefix, path, rc.query)

	resp, err := c.send(ctx, http.MethodPost, u, body, rc)
	if err != nil {
		return nil, err
	}
	return decodePolicyResponse(resp)
}

// ExecuteDefaultPolicyWithInput evaluates the server's default decision
// (POST /). The input is sent as the raw body and the response body is the
// decision itself.
func (c *Client) ExecuteDefaultPolicyWithInput(ctx context.Context, input any, opts ...RequestOption) (*DefaultPolicyResponse, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("sdk: encode input: %w", err)
	}

	rc := newRequestConfig(opts)
	u := c.endpoint("", "", rc.query)

	resp, err := c.send(ctx, http.MethodPost, u, body, rc)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Body)
	if len(result) > 0 && !json.Valid(result) {
		return nil, fmt.Errorf("%w: invalid JSON body", ErrUnexpectedResponse)
	}
	return &DefaultPolicyResponse{Result: json.RawMessage(result)}, nil
}

// ExecuteBatchPolicyWithInput evaluates the document at path once per keyed
// input (POST /v1/batch/data/{path}). Both 200 and 207 responses succeed;
// per-item failures are reported as [BatchItemError] items.
//
// Servers without batch support answer 404; see [IsNotFound].
func (c *Client) ExecuteBatchPolicyWithInput(ctx context.Context, path string, inputs map[string]any, opts ...RequestOption) (*BatchResponse, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	body, err := json.Marshal(batchRequest{Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("sdk: encode inputs: %w", err)
	}

	rc := newRequestConfig(opts)
	u := c.endpoint(batchDataPrefix, path, rc.query)

	resp, err := c.send(ctx, http.MethodPost, u, body, rc)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out BatchResponse
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := decodeJSON(resp.Body, &out); err != nil {
			return nil, err
		}
	}
	if out.Responses == nil {
		out.Responses = map[string]BatchItem{}
	}
	out.Mixed = resp.StatusCode == http.StatusMultiStatus
	return &out, nil
}

func decodePolicyResponse(resp *rawResponse) (*PolicyResponse, error) {
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var out PolicyResponse
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := decodeJSON(resp.Body, &out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
