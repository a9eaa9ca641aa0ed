package catalog

import "context"

// Store persists catalog entries keyed by name.
// Production: adapter/sqlite.CatalogStore
// Testing: adapter/fake.CatalogStore
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	// Get reports found=false (and no error) when name is absent.
	Get(ctx context.Context, name string) (Entry, bool, error)
	// Create fails with errdefs.ErrConflict when name already exists.
	Create(ctx context.Context, e Entry) (Entry, error)
	// Update replaces description and definition; errdefs.ErrNotFound when absent.
	Update(ctx context.Context, e Entry) (Entry, error)
	// Delete fails with errdefs.ErrNotFound when name is absent.
	Delete(ctx context.Context, name string) error
	// SetStatus records a reconciled status and swarm reference. An empty
	// swarmID clears the reference.
	SetStatus(ctx context.Context, name string, status Status, swarmID string) error
	Close() error
}
