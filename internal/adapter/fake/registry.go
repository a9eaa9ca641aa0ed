package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"

	"swarmorch/internal/adapter/fake/fault"
	"swarmorch/internal/errdefs"
	"swarmorch/internal/registry"
)

var _ registry.Client = (*Registry)(nil)

const (
	FaultRegistryRepositories   = "registry.repositories"
	FaultRegistryTags           = "registry.tags"
	FaultRegistryManifest       = "registry.manifest"
	FaultRegistryManifestDigest = "registry.manifest_digest"
	FaultRegistryDelete         = "registry.delete_manifest"
)

// Registry is an in-memory implementation of registry.Client. Deleting a
// manifest removes every tag that points at its digest, as a real registry
// does.
type Registry struct {
	CallRecorder
	Faults *fault.Injector

	mu    sync.Mutex
	repos map[string]map[string]registry.Manifest
}

func NewRegistry() *Registry {
	return &Registry{
		Faults: fault.NewInjector(),
		repos:  make(map[string]map[string]registry.Manifest),
	}
}

// PutTag stores a manifest under repo:tag. An empty digest is derived from
// the repo and tag.
func (r *Registry) PutTag(repo, tag string, m registry.Manifest) registry.Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Digest == "" {
		m.Digest = digest.FromString(repo + ":" + tag)
	}
	tags, ok := r.repos[repo]
	if !ok {
		tags = make(map[string]registry.Manifest)
		r.repos[repo] = tags
	}
	tags[tag] = m
	return m
}

func (r *Registry) Repositories(_ context.Context) ([]string, error) {
	r.record("Repositories")
	if err := r.Faults.Eval(FaultRegistryRepositories); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.repos)), nil
}

func (r *Registry) Tags(_ context.Context, repo string) ([]string, error) {
	r.record("Tags", repo)
	if err := r.Faults.Eval(FaultRegistryTags, repo); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tags, ok := r.repos[repo]
	if !ok {
		return nil, fmt.Errorf("repository %q: %w", repo, errdefs.ErrNotFound)
	}
	return slices.Sorted(maps.Keys(tags)), nil
}

func (r *Registry) Manifest(_ context.Context, repo, reference string) (registry.Manifest, error) {
	r.record("Manifest", repo, reference)
	if err := r.Faults.Eval(FaultRegistryManifest, repo, reference); err != nil {
		return registry.Manifest{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.repos[repo][reference]
	if !ok {
		return registry.Manifest{}, fmt.Errorf("manifest %s:%s: %w", repo, reference, errdefs.ErrNotFound)
	}
	return m, nil
}

func (r *Registry) ManifestDigest(_ context.Context, repo, tag string) (digest.Digest, error) {
	r.record("ManifestDigest", repo, tag)
	if err := r.Faults.Eval(FaultRegistryManifestDigest, repo, tag); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.repos[repo][tag]
	if !ok {
		return "", fmt.Errorf("manifest %s:%s: %w", repo, tag, errdefs.ErrNotFound)
	}
	return m.Digest, nil
}

func (r *Registry) DeleteManifest(_ context.Context, repo string, dgst digest.Digest) error {
	r.record("DeleteManifest", repo, dgst)
	if err := r.Faults.Eval(FaultRegistryDelete, repo, dgst); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tags := r.repos[repo]
	found := false
	for tag, m := range tags {
		if m.Digest == dgst {
			delete(tags, tag)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("manifest %s@%s: %w", repo, dgst, errdefs.ErrNotFound)
	}
	if len(tags) == 0 {
		delete(r.repos, repo)
	}
	return nil
}
