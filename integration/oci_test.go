//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pkgcas"
	"github.com/meigma/pkgcas/integrity"
	"github.com/meigma/pkgcas/internal/testutil"
	"github.com/meigma/pkgcas/store"
)

func TestFetchTarball_OCI(t *testing.T) {
	t.Parallel()
	registryAddr := getRegistry(t)

	tarball := testutil.Tarball(t,
		testutil.File("package/package.json", `{"name":"left-pad","version":"1.3.0"}`),
		testutil.File("package/index.js", "module.exports = leftPad;\n"),
		testutil.Exec("package/bin/pad", "#!/bin/sh\n"),
	)
	url := pushTarball(t, registryAddr, "left-pad", tarball)
	sri := testutil.SRI(tarball)
	client := newTestClient(t)

	idx, err := client.FetchTarball(context.Background(), url, sri)
	require.NoError(t, err)
	require.Len(t, idx, 3)

	for name, body := range map[string]string{
		"package.json": `{"name":"left-pad","version":"1.3.0"}`,
		"index.js":     "module.exports = leftPad;\n",
	} {
		rel, err := store.ContentPath(store.KindFile, integrity.ContentHex([]byte(body)))
		require.NoError(t, err)
		assert.Equal(t, rel, idx[name])
	}
	rel, err := store.ContentPath(store.KindExec, integrity.ContentHex([]byte("#!/bin/sh\n")))
	require.NoError(t, err)
	assert.Equal(t, rel, idx["bin/pad"])

	got, ok, err := client.Lookup(sri)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idx, got)
}

func TestFetchTarball_OCIIntegrityMismatch(t *testing.T) {
	t.Parallel()
	registryAddr := getRegistry(t)

	tarball := testutil.Tarball(t, testutil.File("package/a.txt", "pushed"))
	url := pushTarball(t, registryAddr, "mismatch", tarball)
	other := testutil.Tarball(t, testutil.File("package/a.txt", "expected"))
	client := newTestClient(t)

	_, err := client.FetchTarball(context.Background(), url, testutil.SRI(other))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgcas.ErrIntegrity)

	usage, err := client.Store().Usage()
	require.NoError(t, err)
	assert.Equal(t, store.Usage{}, usage)
}

func TestFetchTarball_OCIMissingBlob(t *testing.T) {
	t.Parallel()
	registryAddr := getRegistry(t)

	missing := digest.FromString("never pushed")
	url := "oci://" + registryAddr + "/test/missing@" + missing.String()
	client := newTestClient(t)

	_, err := client.FetchTarball(context.Background(), url, testutil.SRI([]byte("never pushed")))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgcas.ErrNetwork)
}

func TestFetchTarball_OCISharedContent(t *testing.T) {
	t.Parallel()
	registryAddr := getRegistry(t)

	license := "MIT License\n"
	first := testutil.Tarball(t, testutil.File("package/LICENSE", license), testutil.File("package/a.js", "a"))
	second := testutil.Tarball(t, testutil.File("package/LICENSE", license), testutil.File("package/b.js", "b"))
	firstURL := pushTarball(t, registryAddr, "shared-a", first)
	secondURL := pushTarball(t, registryAddr, "shared-b", second)
	client := newTestClient(t)

	a, err := client.FetchTarball(context.Background(), firstURL, testutil.SRI(first))
	require.NoError(t, err)
	b, err := client.FetchTarball(context.Background(), secondURL, testutil.SRI(second))
	require.NoError(t, err)
	assert.Equal(t, a["LICENSE"], b["LICENSE"])

	usage, err := client.Store().Usage()
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Objects)
	assert.Equal(t, 2, usage.Indexes)
}
