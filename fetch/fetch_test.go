package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pkgcas/internal/castype"
)

func TestSharedClientIsReused(t *testing.T) {
	t.Parallel()

	assert.Same(t, sharedClient(), sharedClient())
}

func TestMux(t *testing.T) {
	t.Parallel()

	var got string
	m := NewMux(nil, nil)
	m.Handle("HTTPS", Func(func(_ context.Context, url string) ([]byte, error) {
		got = url
		return []byte("body"), nil
	}))

	body, err := m.Fetch(context.Background(), "https://registry.example/pkg.tgz")
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
	assert.Equal(t, "https://registry.example/pkg.tgz", got)

	_, err = m.Fetch(context.Background(), "ftp://registry.example/pkg.tgz")
	assert.ErrorIs(t, err, castype.ErrNetwork)

	_, err = m.Fetch(context.Background(), "http://registry.example/pkg.tgz")
	assert.ErrorIs(t, err, castype.ErrNetwork)

	_, err = m.Fetch(context.Background(), "%zz")
	assert.ErrorIs(t, err, castype.ErrNetwork)
}

func TestNewMuxSchemes(t *testing.T) {
	t.Parallel()

	m := NewMux(NewHTTP(), NewOCI())
	for _, scheme := range []string{"http", "https", "oci"} {
		_, ok := m.schemes[scheme]
		assert.True(t, ok, scheme)
	}
}
