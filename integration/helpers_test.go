//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/opaclient"
	"github.com/meigma/opaclient/internal/opatest"
)

// opaImage matches the OPA version the test server is built against.
const opaImage = "openpolicyagent/opa:1.12.3"

// --- OPA Container Setup ---

var (
	opaOnce sync.Once
	opaURL  string
	opaErr  error
)

// getOPA returns the shared server URL, starting the container if needed.
// The container is shared across all tests for performance.
func getOPA(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	opaOnce.Do(func() {
		ctx := context.Background()
		opaURL, opaErr = startOPAContainer(ctx)
		if opaErr == nil {
			opaErr = loadPolicies(ctx, opaURL, opatest.Policies())
		}
	})

	if opaErr != nil {
		tb.Fatalf("start opa container: %v", opaErr)
	}

	return opaURL
}

// startOPAContainer starts an OPA server and returns its base URL.
func startOPAContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image: opaImage,
		Cmd: []string{
			"run",
			"--server",
			"--addr=0.0.0.0:8181",
			"--disable-telemetry",
			"--set=default_decision=" + opatest.DefaultDecision,
		},
		ExposedPorts: []string{"8181/tcp"},
		WaitingFor:   wait.ForHTTP("/health").WithPort("8181/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start opa container: %w", err)
	}

	// Container cleanup is handled by the testcontainers Reaper.

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve opa host: %w", err)
	}

	port, err := container.MappedPort(ctx, "8181/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve opa port: %w", err)
	}

	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

// loadPolicies uploads each module through the policy API.
func loadPolicies(ctx context.Context, serverURL string, policies map[string]string) error {
	for id, src := range policies {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, serverURL+"/v1/policies/"+id, strings.NewReader(src))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("put policy %s: %w", id, err)
		}
		resp.Body.Close()
		if !isOKStatus(resp.StatusCode) {
			return fmt.Errorf("put policy %s: status %d", id, resp.StatusCode)
		}
	}
	return nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Test Client Factory ---

// newTestClient creates a client for the shared OPA server.
func newTestClient(tb testing.TB, serverURL string, opts ...opaclient.Option) *opaclient.Client {
	tb.Helper()

	client, err := opaclient.New(serverURL, opts...)
	require.NoError(tb, err, "create test client")

	return client
}

// --- Test Inputs ---

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

// boolBatch holds inputs for test/p_bool_false; only "c" is undefined.
var boolBatch = map[string]any{
	"a": false,
	"b": false,
	"c": true,
}
