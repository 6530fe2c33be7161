package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Provenance describes the server build and bundle revisions that produced
// a decision. Returned when [WithProvenance] is set.
type Provenance struct {
	Version        string                    `json:"version,omitempty"`
	BuildCommit    string                    `json:"build_commit,omitempty"`
	BuildTimestamp string                    `json:"build_timestamp,omitempty"`
	BuildHostname  string                    `json:"build_hostname,omitempty"`
	Bundles        map[string]BundleRevision `json:"bundles,omitempty"`
}

// BundleRevision is the active revision of one bundle.
type BundleRevision struct {
	Revision string `json:"revision"`
}

// PolicyResponse is a successful policy evaluation.
//
// Result is nil when the evaluated document was undefined.
type PolicyResponse struct {
	Result     json.RawMessage `json:"result,omitempty"`
	DecisionID string          `json:"decision_id,omitempty"`
	Metrics    map[string]any  `json:"metrics,omitempty"`
	Provenance *Provenance     `json:"provenance,omitempty"`
}

// HasResult reports whether the response carried a defined result.
func (r *PolicyResponse) HasResult() bool {
	return r != nil && len(r.Result) > 0
}

// DefaultPolicyResponse is the response of the default decision endpoint.
// The server returns the decision document itself as the body.
type DefaultPolicyResponse struct {
	Result json.RawMessage
}

// BatchItemKind discriminates the variants of [BatchItem].
type BatchItemKind int

const (
	// BatchItemResult is a successful evaluation.
	BatchItemResult BatchItemKind = iota
	// BatchItemError is a failed evaluation.
	BatchItemError
)

// String implements fmt.Stringer.
func (k BatchItemKind) String() string {
	switch k {
	case BatchItemResult:
		return "result"
	case BatchItemError:
		return "error"
	default:
		return fmt.Sprintf("BatchItemKind(%d)", int(k))
	}
}

// BatchItem is one keyed outcome of a batch evaluation. Exactly one of
// Response and Error is set, according to Kind.
type BatchItem struct {
	Kind     BatchItemKind
	Response *PolicyResponse
	Error    *ServerError
}

// ResultItem returns a successful batch item.
func ResultItem(resp *PolicyResponse) BatchItem {
	return BatchItem{Kind: BatchItemResult, Response: resp}
}

// ErrorItem returns a failed batch item.
func ErrorItem(err *ServerError) BatchItem {
	return BatchItem{Kind: BatchItemError, Error: err}
}

// batchItemProbe carries the fields that tell the two wire shapes apart.
type batchItemProbe struct {
	Code *string `json:"code"`
}

// UnmarshalJSON decodes either wire shape. Error documents are recognised by
// their "code" field.
func (i *BatchItem) UnmarshalJSON(data []byte) error {
	var probe batchItemProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Code != nil {
		var serr ServerError
		if err := json.Unmarshal(data, &serr); err != nil {
			return err
		}
		*i = ErrorItem(&serr)
		return nil
	}
	var resp PolicyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	*i = ResultItem(&resp)
	return nil
}

// MarshalJSON encodes the active variant.
func (i BatchItem) MarshalJSON() ([]byte, error) {
	switch i.Kind {
	case BatchItemError:
		return json.Marshal(i.Error)
	default:
		if i.Response == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(i.Response)
	}
}

// BatchResponse is the response of the batch endpoint. It covers both the
// fully successful (200) and mixed (207) shapes.
type BatchResponse struct {
	BatchDecisionID string               `json:"batch_decision_id,omitempty"`
	Responses       map[string]BatchItem `json:"responses"`
	Metrics         map[string]any       `json:"metrics,omitempty"`

	// Mixed is set when the server reported 207 Multi-Status.
	Mixed bool `json:"-"`
}

// policyRequest is the body of POST /v1/data/{path}.
type policyRequest struct {
	Input any `json:"input"`
}

// batchRequest is the body of POST /v1/batch/data/{path}.
type batchRequest struct {
	Inputs map[string]any `json:"inputs"`
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}
