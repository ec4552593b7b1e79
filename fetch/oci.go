package fetch

import (
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"

	"github.com/meigma/pkgcas/internal/castype"
)

// OCIScheme is the URL scheme served by the OCI fetcher.
const OCIScheme = "oci"

// OCI fetches archives stored as blobs in an OCI registry.
//
// URLs have the form oci://<registry>/<repository>@<digest>. The registry
// verifies the blob against its digest; the caller's integrity check still
// applies on top.
type OCI struct {
	plainHTTP   bool
	userAgent   string
	client      *nethttp.Client
	credential  auth.CredentialFunc
	maxBodySize int64

	authClient *auth.Client
}

// OCIOption configures an OCI fetcher.
type OCIOption func(*OCI)

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
// This is useful for local development registries.
func WithPlainHTTP(enabled bool) OCIOption {
	return func(o *OCI) {
		o.plainHTTP = enabled
	}
}

// WithOCIHTTPClient sets the HTTP client used for registry requests.
func WithOCIHTTPClient(client *nethttp.Client) OCIOption {
	return func(o *OCI) {
		o.client = client
	}
}

// WithStaticCredentials sets username/password credentials for one registry host.
func WithStaticCredentials(host, username, password string) OCIOption {
	return func(o *OCI) {
		o.credential = auth.StaticCredential(host, auth.Credential{
			Username: username,
			Password: password,
		})
	}
}

// WithDockerConfig reads credentials from ~/.docker/config.json and its
// credential helpers. If the config cannot be loaded, requests are anonymous.
func WithDockerConfig() OCIOption {
	return func(o *OCI) {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return
		}
		o.credential = credentials.Credential(store)
	}
}

// WithOCIUserAgent sets the User-Agent header for registry requests.
func WithOCIUserAgent(ua string) OCIOption {
	return func(o *OCI) {
		o.userAgent = ua
	}
}

// WithOCIMaxBodySize limits the size of a fetched blob.
// Set to 0 to disable the limit.
func WithOCIMaxBodySize(limit int64) OCIOption {
	return func(o *OCI) {
		o.maxBodySize = limit
	}
}

// NewOCI creates an OCI fetcher.
func NewOCI(opts ...OCIOption) *OCI {
	o := &OCI{
		userAgent:   defaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(o)
	}
	client := o.client
	if client == nil {
		client = sharedClient()
	}
	cred := o.credential
	if cred == nil {
		cred = func(context.Context, string) (auth.Credential, error) {
			return auth.EmptyCredential, nil
		}
	}
	o.authClient = &auth.Client{
		Client:     client,
		Cache:      auth.NewCache(),
		Credential: cred,
		Header: nethttp.Header{
			"User-Agent": []string{o.userAgent},
		},
	}
	return o
}

// ParseOCIURL parses oci://<registry>/<repository>@<digest>. The reference
// must name a blob by digest; tags are rejected.
func ParseOCIURL(rawURL string) (registry.Reference, error) {
	rest, ok := strings.CutPrefix(rawURL, OCIScheme+"://")
	if !ok {
		return registry.Reference{}, fmt.Errorf("%w: %q is not an %s:// url", castype.ErrNetwork, rawURL, OCIScheme)
	}
	ref, err := registry.ParseReference(rest)
	if err != nil {
		return registry.Reference{}, fmt.Errorf("%w: %v", castype.ErrNetwork, err)
	}
	var dgst digest.Digest
	if dgst, err = ref.Digest(); err != nil {
		return registry.Reference{}, fmt.Errorf("%w: %q does not name a blob digest: %v", castype.ErrNetwork, rawURL, err)
	}
	if !dgst.Algorithm().Available() {
		return registry.Reference{}, fmt.Errorf("%w: unsupported digest algorithm %q", castype.ErrNetwork, dgst.Algorithm())
	}
	return ref, nil
}

// Fetch downloads the blob named by rawURL.
func (o *OCI) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ref, err := ParseOCIURL(rawURL)
	if err != nil {
		return nil, err
	}
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", castype.ErrNetwork, err)
	}
	repo.PlainHTTP = o.plainHTTP
	repo.Client = o.authClient

	var desc ocispec.Descriptor
	desc, rc, err := repo.Blobs().FetchReference(ctx, ref.Reference)
	if err != nil {
		return nil, mapError(rawURL, err)
	}
	defer rc.Close()

	if o.maxBodySize > 0 && desc.Size > o.maxBodySize {
		return nil, fmt.Errorf("%w: %s: blob of %d bytes exceeds limit %d", castype.ErrNetwork, rawURL, desc.Size, o.maxBodySize)
	}
	data, err := content.ReadAll(rc, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", castype.ErrNetwork, rawURL, err)
	}
	return data, nil
}

func mapError(rawURL string, err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %s: not found: %w", castype.ErrNetwork, rawURL, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		return fmt.Errorf("%w: %s: registry returned %d: %w", castype.ErrNetwork, rawURL, errResp.StatusCode, err)
	}
	return fmt.Errorf("%w: %s: %w", castype.ErrNetwork, rawURL, err)
}
