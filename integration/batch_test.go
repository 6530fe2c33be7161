//go:build integration

package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/opaclient"
)

// The OPA server has no batch endpoint, so batch calls depend on fallback.

func TestEvaluateBatch_RequiresFallback(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, getOPA(t))

	_, err := client.EvaluateBatch(t.Context(), "test/p_bool_false", boolBatch)
	require.Error(t, err, "EvaluateBatch should fail")
	assert.True(t, opaclient.IsBatchUnsupported(err))
	assert.EqualError(t, err, "API error occurred: Status 404 Content-Type text/plain; charset=utf-8")
	assert.True(t, client.BatchSupported(), "a 404 without fallback must not change the client")
}

func TestEvaluateBatch_Fallback(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, getOPA(t))

	res, err := client.EvaluateBatch(t.Context(), "test/p_bool_false", boolBatch, opaclient.WithFallback(true))
	require.NoError(t, err, "EvaluateBatch")

	require.Len(t, res, 3)
	assert.Equal(t, true, res["a"].Result)
	assert.Equal(t, true, res["b"].Result)
	assert.Nil(t, res["c"].Result, "undefined decision")
	assert.Empty(t, res.Failed())
}

func TestEvaluateBatch_FallbackIsMemoizedButOptIn(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, getOPA(t))

	_, err := client.EvaluateBatch(t.Context(), "test/p_bool_false", boolBatch, opaclient.WithFallback(true))
	require.NoError(t, err, "EvaluateBatch")
	assert.False(t, client.BatchSupported())

	res, err := client.EvaluateBatch(t.Context(), "test/p_bool_false", boolBatch, opaclient.WithFallback(true))
	require.NoError(t, err, "EvaluateBatch after fallback")
	assert.Len(t, res, 3)

	_, err = client.EvaluateBatch(t.Context(), "test/p_bool_false", boolBatch)
	require.Error(t, err, "fallback must stay opt-in")
	assert.True(t, opaclient.IsBatchUnsupported(err))
}

func TestEvaluateBatch_FallbackMixed(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, getOPA(t))

	inputs := map[string]any{
		"ok":  map[string]any{"a": "x"},
		"bad": map[string]any{"a": "x", "b": "x"},
	}

	res, err := client.EvaluateBatch(t.Context(), "condfail/p", inputs, opaclient.WithFallback(true))
	require.NoError(t, err, "EvaluateBatch")

	require.Len(t, res, 2)
	assert.Equal(t, map[string]any{"x": "a"}, res["ok"].Result)
	assert.Equal(t, []string{"bad"}, res.Failed())

	serr := res["bad"].Err
	require.NotNil(t, serr)
	assert.Equal(t, "internal_error", serr.Code)
	assert.Equal(t, "500", serr.HTTPStatusCode)
}

func TestEvaluateBatch_FallbackRejectErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, getOPA(t))

	inputs := map[string]any{
		"ok":  map[string]any{"a": "x"},
		"bad": map[string]any{"a": "x", "b": "x"},
	}

	_, err := client.EvaluateBatch(t.Context(), "condfail/p", inputs,
		opaclient.WithFallback(true), opaclient.WithRejectErrors(true))
	require.Error(t, err, "EvaluateBatch should fail")

	var serr *opaclient.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "internal_error", serr.Code)
}

func TestEvaluateBatch_FallbackConvertsInputs(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, getOPA(t), opaclient.WithBatchConcurrency(1))

	res, err := opaclient.EvaluateBatch[map[string]string](t.Context(), client, "test/compound_input",
		map[string]any{"alice": compoundInput{Name: "alice"}},
		opaclient.WithFallback(true))
	require.NoError(t, err, "EvaluateBatch")
	assert.Equal(t, map[string]string{"foo": "bar"}, res["alice"].Result)
}
