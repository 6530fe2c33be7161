package opaclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/opaclient/internal/opatest"
)

// compoundInput converts itself to the input expected by
// test/compound_input.
type compoundInput struct {
	Name string
}

func (c compoundInput) ToInput() any {
	return map[string]any{
		"name": c.Name,
		"list": []any{1, 2, true},
	}
}

func newTestServer(t *testing.T, opts ...opatest.Option) *opatest.Server {
	t.Helper()
	return opatest.NewServer(t, append([]opatest.Option{opatest.WithStandardPolicies()}, opts...)...)
}

func newTestClient(t *testing.T, srv *opatest.Server, opts ...Option) *Client {
	t.Helper()

	c, err := New(srv.URL(), opts...)
	require.NoError(t, err)
	return c
}
