// Package sdk is the low-level client for the OPA REST API.
//
// It maps one Go method to one HTTP operation and leaves decision shaping to
// the caller:
//
//   - [Client.ExecutePolicy]: GET /v1/data/{path}
//   - [Client.ExecutePolicyWithInput]: POST /v1/data/{path}
//   - [Client.ExecuteDefaultPolicyWithInput]: POST /
//   - [Client.ExecuteBatchPolicyWithInput]: POST /v1/batch/data/{path}
//
// Non-2xx responses are returned as [*APIError]. When the body is a JSON
// error document, it is decoded into [ServerError] and reachable through
// errors.As.
//
// Most callers should use the high-level github.com/meigma/opaclient package
// instead.
package sdk
