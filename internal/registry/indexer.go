// Package registry indexes an image registry's repositories and manifests
// behind a cache that is invalidated on delete.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"swarmorch/internal/check"
	"swarmorch/internal/errdefs"
)

// DefaultConcurrency bounds parallel requests to the registry per call.
const DefaultConcurrency = 4

const repositoriesKey = "repositories"

// Indexer serves repository listings and tag details. Details are cached
// per repository; the repository listing is cached as a whole.
type Indexer struct {
	client      Client
	details     *Cache[RepositoryDetail]
	listing     *Cache[[]Repository]
	concurrency int
	log         *slog.Logger
}

type IndexerOption func(*Indexer)

func WithConcurrency(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithCaches replaces the detail and listing caches.
func WithCaches(details *Cache[RepositoryDetail], listing *Cache[[]Repository]) IndexerOption {
	return func(ix *Indexer) {
		ix.details = details
		ix.listing = listing
	}
}

func NewIndexer(client Client, opts ...IndexerOption) *Indexer {
	check.Assert(client != nil, "registry.NewIndexer: client must not be nil")

	ix := &Indexer{
		client:      client,
		details:     NewCache[RepositoryDetail](),
		listing:     NewCache[[]Repository](),
		concurrency: DefaultConcurrency,
		log:         slog.With("component", "registry"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ListRepositories returns every repository with its tag names. A
// repository whose tags cannot be listed is returned with no tags.
func (ix *Indexer) ListRepositories(ctx context.Context) ([]Repository, error) {
	repos, err := ix.listing.Get(ctx, repositoriesKey, ix.fetchRepositories)
	if err != nil {
		return nil, err
	}
	return slices.Clone(repos), nil
}

func (ix *Indexer) fetchRepositories(ctx context.Context) ([]Repository, error) {
	names, err := ix.client.Repositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	out := make([]Repository, len(names))
	var g errgroup.Group
	g.SetLimit(ix.concurrency)
	for i, name := range names {
		g.Go(func() error {
			tags, err := ix.client.Tags(ctx, name)
			if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
				ix.log.Warn("list tags failed", "repository", name, "err", err)
			}
			if tags == nil {
				tags = []string{}
			}
			out[i] = Repository{Name: name, Tags: tags}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// Tags lists the tag names of one repository.
func (ix *Indexer) Tags(ctx context.Context, repo string) ([]string, error) {
	tags, err := ix.client.Tags(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("tags of %s: %w", repo, err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// GetDetails returns manifest metadata for every tag of repo. A tag whose
// manifest cannot be fetched keeps only its name.
func (ix *Indexer) GetDetails(ctx context.Context, repo string) (RepositoryDetail, error) {
	d, err := ix.details.Get(ctx, repo, func(ctx context.Context) (RepositoryDetail, error) {
		return ix.fetchDetails(ctx, repo)
	})
	if err != nil {
		return RepositoryDetail{}, err
	}
	d.Tags = slices.Clone(d.Tags)
	return d, nil
}

func (ix *Indexer) fetchDetails(ctx context.Context, repo string) (RepositoryDetail, error) {
	tags, err := ix.client.Tags(ctx, repo)
	if err != nil {
		return RepositoryDetail{}, fmt.Errorf("tags of %s: %w", repo, err)
	}

	details := make([]TagDetail, len(tags))
	var g errgroup.Group
	g.SetLimit(ix.concurrency)
	for i, tag := range tags {
		g.Go(func() error {
			m, err := ix.client.Manifest(ctx, repo, tag)
			if err != nil {
				ix.log.Warn("fetch manifest failed", "repository", repo, "tag", tag, "err", err)
				details[i] = TagDetail{Tag: tag}
				return nil
			}
			details[i] = tagDetail(tag, m)
			return nil
		})
	}
	_ = g.Wait()

	return RepositoryDetail{Name: repo, Tags: details, TagCount: len(details)}, nil
}

// DeleteResult reports what a tag deletion removed.
type DeleteResult struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
	Digest     string `json:"digest"`
	// RepositoryEmpty is true when no tags remain in the repository.
	RepositoryEmpty bool `json:"repository_empty"`
}

// DeleteTag deletes the manifest tag points at. On success the cached
// details of repo and the cached repository listing are both dropped.
func (ix *Indexer) DeleteTag(ctx context.Context, repo, tag string) (DeleteResult, error) {
	tags, err := ix.client.Tags(ctx, repo)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("tags of %s: %w", repo, err)
	}
	if !slices.Contains(tags, tag) {
		return DeleteResult{}, fmt.Errorf("tag %s:%s: %w", repo, tag, errdefs.ErrNotFound)
	}

	dgst, err := ix.client.ManifestDigest(ctx, repo, tag)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("resolve %s:%s: %w", repo, tag, err)
	}
	if err := dgst.Validate(); err != nil {
		return DeleteResult{}, fmt.Errorf("resolve %s:%s: invalid digest %q: %w", repo, tag, dgst, errdefs.ErrUpstreamUnavailable)
	}
	if err := ix.client.DeleteManifest(ctx, repo, dgst); err != nil {
		return DeleteResult{}, fmt.Errorf("delete %s@%s: %w", repo, dgst, err)
	}
	ix.details.Invalidate(repo)
	ix.listing.Invalidate(repositoriesKey)

	res := DeleteResult{Repository: repo, Tag: tag, Digest: dgst.String()}
	res.RepositoryEmpty = ix.repositoryEmpty(ctx, repo, tags)

	ix.log.Info("tag deleted", "repository", repo, "tag", tag, "digest", dgst, "repository_empty", res.RepositoryEmpty)
	return res, nil
}

// repositoryEmpty re-lists tags after a delete. A listing failure counts as
// empty.
func (ix *Indexer) repositoryEmpty(ctx context.Context, repo string, before []string) bool {
	if len(before) <= 1 {
		return true
	}
	remaining, err := ix.client.Tags(ctx, repo)
	if err != nil {
		return true
	}
	return len(remaining) == 0
}

// Invalidate drops every cached listing and detail.
func (ix *Indexer) Invalidate() {
	ix.details.InvalidateAll()
	ix.listing.InvalidateAll()
}
