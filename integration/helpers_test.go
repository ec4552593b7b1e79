//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"

	"github.com/meigma/pkgcas"
)

// tarballMediaType is the media type used for pushed package tarballs.
const tarballMediaType = "application/vnd.npm.package.tarball.v1+gzip"

// --- Registry Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container if needed.
// The container is shared across all tests for performance.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})

	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}

	return registryAddr
}

// startRegistryContainer starts a registry:2 container and returns the host:port address.
func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Test Client Factory ---

// newTestClient creates a client with a fresh store configured for the
// local test registry.
func newTestClient(tb testing.TB, opts ...pkgcas.Option) *pkgcas.Client {
	tb.Helper()

	allOpts := append([]pkgcas.Option{
		pkgcas.WithStoreDir(tb.TempDir()),
		pkgcas.WithPlainHTTP(true),
	}, opts...)

	client, err := pkgcas.NewClient(allOpts...)
	require.NoError(tb, err, "create test client")

	return client
}

// --- Registry Helpers ---

// pushTarball uploads data as a blob to <registry>/test/<name> and returns
// the oci:// URL that names it.
func pushTarball(tb testing.TB, registryAddr, name string, data []byte) string {
	tb.Helper()

	repoRef := fmt.Sprintf("%s/test/%s", registryAddr, name)
	repo, err := remote.NewRepository(repoRef)
	require.NoError(tb, err, "create repository")
	repo.PlainHTTP = true

	desc := content.NewDescriptorFromBytes(tarballMediaType, data)
	require.NoError(tb, repo.Push(context.Background(), desc, bytes.NewReader(data)), "push blob")

	return fmt.Sprintf("oci://%s@%s", repoRef, desc.Digest)
}
