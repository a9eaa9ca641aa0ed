package registry

import (
	"context"
	"time"

	"github.com/opencontainers/go-digest"
)

// Client speaks the registry's distribution API.
// Production: adapter/registry.Client
// Testing: adapter/fake.Registry
//
// A repository, tag or manifest the registry does not know is
// errdefs.ErrNotFound. A delete the registry refuses is errdefs.ErrConflict.
type Client interface {
	Repositories(ctx context.Context) ([]string, error)
	Tags(ctx context.Context, repo string) ([]string, error)
	Manifest(ctx context.Context, repo, reference string) (Manifest, error)
	// ManifestDigest resolves a tag to its content digest without fetching
	// the manifest body.
	ManifestDigest(ctx context.Context, repo, tag string) (digest.Digest, error)
	DeleteManifest(ctx context.Context, repo string, dgst digest.Digest) error
}

// Clock provides the current time for cache expiry.
// Production: SystemClock
// Testing: adapter/fake.Clock
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
