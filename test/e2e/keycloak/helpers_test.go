package keycloak_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/realmkit/pkg/realmx"
)

/*
 * End-to-end tests against a real Keycloak container. Slow and
 * Docker-dependent, so they only run when E2E_KEYCLOAK=1 is set:
 *
 *   E2E_KEYCLOAK=1 go test ./test/e2e/keycloak/...
 */

const (
	keycloakImage = "quay.io/keycloak/keycloak:26.0"

	realmName    = "test"
	clientID     = "resourced"
	clientSecret = "e2e-client-secret"
)

func skipUnlessE2E(t *testing.T) {
	t.Helper()
	if os.Getenv("E2E_KEYCLOAK") == "" {
		t.Skip("set E2E_KEYCLOAK=1 to run Keycloak end-to-end tests")
	}
}

// setupKeycloak starts a Keycloak container with the test realm
// imported and returns its base URL.
func setupKeycloak(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        keycloakImage,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"KC_BOOTSTRAP_ADMIN_USERNAME": "admin",
			"KC_BOOTSTRAP_ADMIN_PASSWORD": "admin",
		},
		Cmd: []string{"start-dev", "--import-realm"},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      "testdata/realm-export.json",
				ContainerFilePath: "/opt/keycloak/data/import/realm-export.json",
				FileMode:          0o644,
			},
		},
		WaitingFor: wait.ForLog("Running the server in development mode").
			WithStartupTimeout(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// newResolver wires a resolver against the containerized realm.
func newResolver(t *testing.T, baseURL string) *realmx.Resolver {
	t.Helper()

	server, err := realmx.NewServer(baseURL, "")
	require.NoError(t, err)
	return realmx.NewResolver(server, realmName)
}
