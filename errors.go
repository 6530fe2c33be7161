package opaclient

import (
	"errors"

	"github.com/meigma/opaclient/sdk"
)

// Sentinel errors.
var (
	// ErrNoResult is returned when the server response carries no decision,
	// usually because the evaluated document is undefined.
	ErrNoResult = errors.New("opaclient: no result in API response")

	// ErrResultType is returned when a result mapper produces a value of a
	// different type than requested.
	ErrResultType = errors.New("opaclient: result mapper returned unexpected type")

	// ErrNoServerURL is returned when New is called without a server URL.
	ErrNoServerURL = errors.New("opaclient: server URL is required")
)

// Errors re-exported from sdk.
type (
	// APIError is returned for any non-2xx response.
	APIError = sdk.APIError

	// ServerError is the error document returned by OPA. It is also the
	// per-key error of a mixed batch result.
	ServerError = sdk.ServerError
)

// IsBatchUnsupported reports whether err is the 404 a server without the
// batch endpoint answers with.
func IsBatchUnsupported(err error) bool {
	return sdk.IsNotFound(err)
}
