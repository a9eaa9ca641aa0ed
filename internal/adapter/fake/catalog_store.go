package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"swarmorch/internal/adapter/fake/fault"
	"swarmorch/internal/catalog"
	"swarmorch/internal/errdefs"
)

var _ catalog.Store = (*CatalogStore)(nil)

const (
	FaultCatalogList      = "catalog.list"
	FaultCatalogGet       = "catalog.get"
	FaultCatalogCreate    = "catalog.create"
	FaultCatalogUpdate    = "catalog.update"
	FaultCatalogDelete    = "catalog.delete"
	FaultCatalogSetStatus = "catalog.set_status"
)

// CatalogStore is an in-memory implementation of catalog.Store.
type CatalogStore struct {
	CallRecorder
	Faults *fault.Injector

	mu      sync.Mutex
	entries map[string]catalog.Entry
	now     func() time.Time
}

// NewCatalogStore creates an empty CatalogStore stamped by the wall clock.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		Faults:  fault.NewInjector(),
		entries: make(map[string]catalog.Entry),
		now:     time.Now,
	}
}

// Put seeds an entry as-is, including status and swarm id.
func (s *CatalogStore) Put(e catalog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Name] = cloneEntry(e)
}

func (s *CatalogStore) List(_ context.Context) ([]catalog.Entry, error) {
	s.record("List")
	if err := s.Faults.Eval(FaultCatalogList); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names := slices.Sorted(maps.Keys(s.entries))
	out := make([]catalog.Entry, 0, len(names))
	for _, name := range names {
		out = append(out, cloneEntry(s.entries[name]))
	}
	return out, nil
}

func (s *CatalogStore) Get(_ context.Context, name string) (catalog.Entry, bool, error) {
	s.record("Get", name)
	if err := s.Faults.Eval(FaultCatalogGet, name); err != nil {
		return catalog.Entry{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return catalog.Entry{}, false, nil
	}
	return cloneEntry(e), true, nil
}

func (s *CatalogStore) Create(_ context.Context, e catalog.Entry) (catalog.Entry, error) {
	s.record("Create", e.Name)
	if err := s.Faults.Eval(FaultCatalogCreate, e.Name); err != nil {
		return catalog.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.Name]; ok {
		return catalog.Entry{}, fmt.Errorf("service %q already registered: %w", e.Name, errdefs.ErrConflict)
	}
	now := s.now().UTC()
	e.Status = catalog.StatusRegistered
	e.SwarmID = ""
	e.CreatedAt, e.UpdatedAt = now, now
	s.entries[e.Name] = cloneEntry(e)
	return cloneEntry(e), nil
}

func (s *CatalogStore) Update(_ context.Context, e catalog.Entry) (catalog.Entry, error) {
	s.record("Update", e.Name, e.Definition.Replicas)
	if err := s.Faults.Eval(FaultCatalogUpdate, e.Name); err != nil {
		return catalog.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[e.Name]
	if !ok {
		return catalog.Entry{}, fmt.Errorf("service %q: %w", e.Name, errdefs.ErrNotFound)
	}
	cur.Description = e.Description
	cur.Definition = e.Definition.Clone()
	cur.UpdatedAt = s.now().UTC()
	s.entries[e.Name] = cur
	return cloneEntry(cur), nil
}

func (s *CatalogStore) Delete(_ context.Context, name string) error {
	s.record("Delete", name)
	if err := s.Faults.Eval(FaultCatalogDelete, name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	delete(s.entries, name)
	return nil
}

func (s *CatalogStore) SetStatus(_ context.Context, name string, status catalog.Status, swarmID string) error {
	s.record("SetStatus", name, status, swarmID)
	if err := s.Faults.Eval(FaultCatalogSetStatus, name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	cur.Status = status
	cur.SwarmID = swarmID
	cur.UpdatedAt = s.now().UTC()
	s.entries[name] = cur
	return nil
}

func (s *CatalogStore) Close() error { return nil }

func cloneEntry(e catalog.Entry) catalog.Entry {
	e.Definition = e.Definition.Clone()
	return e
}
