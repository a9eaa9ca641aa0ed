package reconcile

import (
	"context"
	"errors"
	"fmt"

	"swarmorch/internal/catalog"
	"swarmorch/internal/errdefs"
)

// Register adds a new catalog entry. The entry starts registered with no
// swarm reference.
func (c *Controller) Register(ctx context.Context, name, description string, def catalog.ServiceDefinition) (catalog.Entry, error) {
	if err := catalog.ValidateName(name); err != nil {
		return catalog.Entry{}, err
	}
	if err := def.Validate(); err != nil {
		return catalog.Entry{}, err
	}

	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	e, err := c.store.Create(ctx, catalog.Entry{Name: name, Description: description, Definition: def.Clone()})
	if err != nil {
		return catalog.Entry{}, err
	}
	c.log.Info("service registered", "service", name, "image", def.Image)
	return e, nil
}

// EntryPatch carries the optional fields of a catalog update.
type EntryPatch struct {
	Description *string
	Definition  *catalog.ServiceDefinition
}

// UpdateEntry changes the description and/or definition of an entry. The
// live service is untouched until the next deploy.
func (c *Controller) UpdateEntry(ctx context.Context, name string, patch EntryPatch) (catalog.Entry, error) {
	if patch.Definition != nil {
		if err := patch.Definition.Validate(); err != nil {
			return catalog.Entry{}, err
		}
	}

	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	entry, err := c.lookup(ctx, name)
	if err != nil {
		return catalog.Entry{}, err
	}
	if patch.Description != nil {
		entry.Description = *patch.Description
	}
	if patch.Definition != nil {
		entry.Definition = patch.Definition.Clone()
	}
	return c.store.Update(ctx, entry)
}

// Delete removes the catalog entry only; a live service of the same name
// keeps running.
func (c *Controller) Delete(ctx context.Context, name string) error {
	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	if err := c.store.Delete(ctx, name); err != nil {
		return err
	}
	c.log.Info("service removed from catalog", "service", name)
	return nil
}

type PurgeResult struct {
	Name string `json:"name"`
	// LiveRemoved is false when no live service of that name existed.
	LiveRemoved bool `json:"live_removed"`
}

// Purge removes the live service, if any, and then the catalog entry. When
// the engine removal fails the entry is kept so the purge can be retried.
func (c *Controller) Purge(ctx context.Context, name string) (PurgeResult, error) {
	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	if _, err := c.lookup(ctx, name); err != nil {
		return PurgeResult{}, err
	}

	res := PurgeResult{Name: name, LiveRemoved: true}
	if err := c.engine.RemoveService(ctx, name); err != nil {
		if !errors.Is(err, errdefs.ErrNotFound) {
			return PurgeResult{}, fmt.Errorf("remove live service %q: %w", name, err)
		}
		res.LiveRemoved = false
	}
	if err := c.store.Delete(ctx, name); err != nil {
		return PurgeResult{}, err
	}
	c.log.Info("service purged", "service", name, "live_removed", res.LiveRemoved)
	return res, nil
}

type ImportOutcome string

const (
	ImportCreated  ImportOutcome = "created"
	ImportConflict ImportOutcome = "conflict"
	ImportInvalid  ImportOutcome = "invalid"
	ImportFailed   ImportOutcome = "failed"
)

type ImportResult struct {
	Name    string        `json:"name"`
	Outcome ImportOutcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// Import registers every service of a compose document. A service that
// cannot be registered is reported in its result and does not stop the
// rest of the batch.
func (c *Controller) Import(ctx context.Context, compose []byte, project string) ([]ImportResult, error) {
	entries, err := catalog.FromCompose(ctx, compose, project)
	if err != nil {
		return nil, err
	}

	results := make([]ImportResult, 0, len(entries))
	for _, e := range entries {
		_, err := c.Register(ctx, e.Name, e.Description, e.Definition)
		results = append(results, importResult(e.Name, err))
	}
	return results, nil
}

func importResult(name string, err error) ImportResult {
	r := ImportResult{Name: name, Outcome: ImportCreated}
	if err == nil {
		return r
	}
	r.Error = err.Error()
	switch {
	case errors.Is(err, errdefs.ErrConflict):
		r.Outcome = ImportConflict
	case errors.Is(err, errdefs.ErrInvalidArgument):
		r.Outcome = ImportInvalid
	default:
		r.Outcome = ImportFailed
	}
	return r
}

// Seed registers entries that are not yet in the catalog and leaves existing
// ones untouched. It returns the number of entries added.
func (c *Controller) Seed(ctx context.Context, entries []catalog.Entry) (int, error) {
	added := 0
	for _, e := range entries {
		_, err := c.Register(ctx, e.Name, e.Description, e.Definition)
		switch {
		case err == nil:
			added++
		case errors.Is(err, errdefs.ErrConflict):
		case errors.Is(err, errdefs.ErrInvalidArgument):
			c.log.Warn("skipping invalid service definition", "service", e.Name, "err", err)
		default:
			return added, fmt.Errorf("seed %q: %w", e.Name, err)
		}
	}
	return added, nil
}
