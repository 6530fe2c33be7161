package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for client construction and request building.
var (
	// ErrInvalidServerURL is returned when the server URL cannot be parsed.
	ErrInvalidServerURL = errors.New("sdk: invalid server URL")

	// ErrUnexpectedResponse is returned when a 2xx response body cannot be decoded.
	ErrUnexpectedResponse = errors.New("sdk: unexpected response")
)

// Location identifies a position in a policy module.
type Location struct {
	File string `json:"file"`
	Row  int    `json:"row"`
	Col  int    `json:"col"`
}

// ErrorDetail is one entry of a server error's detail list.
type ErrorDetail struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Location *Location `json:"location,omitempty"`
}

// ServerError is the JSON error document returned by OPA.
//
// It appears both as the body of failed responses and as an item of a
// mixed batch response.
type ServerError struct {
	Code           string        `json:"code"`
	Message        string        `json:"message"`
	HTTPStatusCode string        `json:"http_status_code,omitempty"`
	DecisionID     string        `json:"decision_id,omitempty"`
	Errors         []ErrorDetail `json:"errors,omitempty"`
}

// Error implements error.
func (e *ServerError) Error() string {
	return e.Message
}

// APIError is returned for any non-2xx response.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// ContentType is the response Content-Type header.
	ContentType string
	// Body is the raw response body.
	Body []byte
	// Server is the decoded error document, if the body contained one.
	Server *ServerError
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Server != nil && e.Server.Message != "" {
		return fmt.Sprintf("API error occurred: Status %d: %s", e.StatusCode, e.Server.Message)
	}
	return fmt.Sprintf("API error occurred: Status %d Content-Type %s", e.StatusCode, e.ContentType)
}

// Unwrap exposes the decoded server error to errors.As.
func (e *APIError) Unwrap() error {
	if e.Server == nil {
		return nil
	}
	return e.Server
}

// IsStatus reports whether err is an [*APIError] with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == status
}

// IsNotFound reports whether err is a 404 [*APIError].
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "application/json") || strings.Contains(ct, "+json")
}
