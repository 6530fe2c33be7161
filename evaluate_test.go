package opaclient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/opaclient/internal/opatest"
	"github.com/meigma/opaclient/sdk"
)

func TestEvaluate_NoInputUsesGet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	res, err := c.Evaluate(t.Context(), "test/p_bool")
	require.NoError(t, err)
	assert.Equal(t, true, res)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/v1/data/test/p_bool", reqs[0].Path)
	assert.Empty(t, reqs[0].Body)
}

func TestEvaluate_WithInput(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	tests := []struct {
		name     string
		path     string
		input    any
		want     Result
		wantBody string
	}{
		{name: "false input", path: "test/p_bool_false", input: false, want: true, wantBody: `{"input":false}`},
		{name: "nil input is null", path: "test/has_type", input: nil, want: map[string]any{"type": "null"}, wantBody: `{"input":null}`},
		{name: "number input", path: "test/has_type", input: 3, want: map[string]any{"type": "number"}, wantBody: `{"input":3}`},
		{name: "converted input", path: "test/compound_input", input: compoundInput{Name: "alice"}, want: map[string]any{"foo": "bar"},
			wantBody: `{"input":{"name":"alice","list":[1,2,true]}}`},
		{name: "echo round trip", path: "echo/result", input: map[string]any{"a": []any{"x", 1.5}}, want: map[string]any{"a": []any{"x", 1.5}},
			wantBody: `{"input":{"a":["x",1.5]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Evaluate(t.Context(), tt.path, WithInput(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)

			reqs := srv.Requests()
			last := reqs[len(reqs)-1]
			assert.Equal(t, http.MethodPost, last.Method)
			assert.JSONEq(t, tt.wantBody, string(last.Body))
		})
	}
}

func TestEvaluate_EscapedPath(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	res, err := Evaluate[bool](t.Context(), c, "has/weird%2fpackage/but/it_is")
	require.NoError(t, err)
	assert.True(t, res)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/data/has/weird%2fpackage/but/it_is", reqs[0].Path)
}

func TestEvaluate_TypedResult(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	type decision struct {
		Allowed bool `json:"allowed"`
	}
	res, err := Evaluate[decision](t.Context(), c, "test/compound_result")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	ptr, err := Evaluate[*decision](t.Context(), c, "test/compound_result")
	require.NoError(t, err)
	require.NotNil(t, ptr)
	assert.True(t, ptr.Allowed)
}

func TestEvaluate_IdentityWithoutMapper(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	res, err := c.Evaluate(t.Context(), "test/compound_result")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"allowed": true}, res)
}

func TestEvaluate_FromResult(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	var seen Result
	res, err := Evaluate[bool](t.Context(), c, "test/compound_result",
		WithFromResult(func(r Result) (bool, error) {
			seen = r
			m, _ := r.(map[string]any)
			allowed, _ := m["allowed"].(bool)
			return allowed, nil
		}))
	require.NoError(t, err)
	assert.True(t, res)
	assert.Equal(t, map[string]any{"allowed": true}, seen)
}

func TestEvaluate_FromResultErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	errMapper := errors.New("mapper failed")
	_, err := Evaluate[bool](t.Context(), c, "test/p_bool",
		WithFromResult(func(Result) (bool, error) { return false, errMapper }))
	require.ErrorIs(t, err, errMapper)

	_, err = Evaluate[bool](t.Context(), c, "test/p_bool",
		WithFromResult(func(Result) (string, error) { return "yes", nil }))
	require.ErrorIs(t, err, ErrResultType)
	assert.Contains(t, err.Error(), "got string, want bool")

	// A nil mapper restores the default decoding.
	res, err := Evaluate[bool](t.Context(), c, "test/p_bool", WithFromResult[bool](nil))
	require.NoError(t, err)
	assert.True(t, res)
}

func TestEvaluate_NoResult(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	called := false
	mapper := WithFromResult(func(Result) (bool, error) {
		called = true
		return true, nil
	})

	_, err := Evaluate[bool](t.Context(), c, "test/p_bool_false", WithInput(true), mapper)
	require.ErrorIs(t, err, ErrNoResult)
	assert.Contains(t, err.Error(), "test/p_bool_false")
	assert.False(t, called, "mapper must not run without a result")

	_, err = c.Evaluate(t.Context(), "nothing/here")
	require.ErrorIs(t, err, ErrNoResult)
}

func TestEvaluate_DecodeError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	_, err := Evaluate[int](t.Context(), c, "test/p_bool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode result into int")
}

func TestEvaluate_ServerError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	_, err := c.Evaluate(t.Context(), "condfail/p", WithInput(map[string]any{"a": "a", "b": "a"}))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "internal_error", serr.Code)
	assert.Equal(t, "error(s) occurred while evaluating query", serr.Message)
	require.Len(t, serr.Errors, 1)
	assert.Equal(t, "eval_conflict_error", serr.Errors[0].Code)
	assert.Equal(t, "object keys must be unique", serr.Errors[0].Message)
	require.NotNil(t, serr.Errors[0].Location)
	assert.Equal(t, sdk.Location{File: "condfail", Row: 3, Col: 1}, *serr.Errors[0].Location)
}

func TestEvaluate_RequestOptions(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	_, err := c.Evaluate(t.Context(), "test/p_bool",
		WithRequestOptions(sdk.WithProvenance(), sdk.WithRequestHeader("X-Request-Id", "r-1")))
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "provenance=true", reqs[0].Query)
	assert.Equal(t, "r-1", reqs[0].Header.Get("X-Request-Id"))
}

func TestEvaluate_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := c.Evaluate(ctx, "test/p_bool")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, srv.Requests())
}

func TestEvaluateDefault(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := newTestClient(t, srv)

	res, err := c.EvaluateDefault(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"has_input": true}, res)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/", reqs[0].Path)
	assert.JSONEq(t, `{}`, string(reqs[0].Body))

	type mainDecision struct {
		HasInput       bool `json:"has_input"`
		DifferentInput bool `json:"different_input"`
	}
	typed, err := EvaluateDefault[mainDecision](t.Context(), c, WithInput(map[string]any{"foo": "bar"}))
	require.NoError(t, err)
	assert.Equal(t, mainDecision{HasInput: true, DifferentInput: true}, typed)

	mapped, err := EvaluateDefault[int](t.Context(), c, WithFromResult(func(r Result) (int, error) {
		return len(r.(map[string]any)), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, mapped)
}

func TestEvaluateDefault_Undefined(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, opatest.WithDefaultDecision("nothing/here"))
	c := newTestClient(t, srv)

	_, err := c.EvaluateDefault(t.Context())
	require.Error(t, err)
	assert.True(t, sdk.IsNotFound(err))

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "undefined_document", serr.Code)
}
