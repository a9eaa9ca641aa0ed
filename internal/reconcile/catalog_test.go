package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"swarmorch/internal/catalog"
	"swarmorch/internal/errdefs"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, _, _ := newTestController(t)
	def := catalog.ServiceDefinition{Image: "nginx:1.27", Replicas: 2, Ports: []string{"8080:80"}}

	e, err := c.Register(ctx, "web", "edge", def)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if e.Status != catalog.StatusRegistered || e.SwarmID != "" {
		t.Fatalf("Register() = %v/%q, want registered with no reference", e.Status, e.SwarmID)
	}

	if _, err := c.Register(ctx, "web", "", def); !errors.Is(err, errdefs.ErrConflict) {
		t.Fatalf("duplicate Register() error = %v, want conflict", err)
	}
	if _, err := c.Register(ctx, "bad name", "", def); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("Register(bad name) error = %v, want invalid argument", err)
	}
	def.Replicas = -1
	if _, err := c.Register(ctx, "api", "", def); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("Register(replicas=-1) error = %v, want invalid argument", err)
	}
}

func TestUpdateEntry(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, store, _ := newTestController(t)
	store.Put(entry("web", 3))

	desc := "public site"
	def := entry("web", 4).Definition
	got, err := c.UpdateEntry(ctx, "web", EntryPatch{Description: &desc, Definition: &def})
	if err != nil {
		t.Fatalf("UpdateEntry() error = %v", err)
	}
	if got.Description != desc || got.Definition.Replicas != 4 {
		t.Fatalf("UpdateEntry() = %+v", got)
	}

	if _, err := c.UpdateEntry(ctx, "ghost", EntryPatch{Description: &desc}); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("UpdateEntry(ghost) error = %v, want not found", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, store, engine := newTestController(t)
	store.Put(entry("web", 3))
	engine.PutService(live("web", 3, 3))

	if err := c.Delete(ctx, "web"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "web"); ok {
		t.Fatal("entry still present after Delete")
	}
	if _, _, ok := engine.Service("web"); !ok {
		t.Fatal("Delete removed the live service")
	}
	if err := c.Delete(ctx, "web"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want not found", err)
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, store, engine := newTestController(t)
	store.Put(entry("web", 3))
	store.Put(entry("api", 1))
	engine.PutService(live("web", 3, 3))

	res, err := c.Purge(ctx, "web")
	if err != nil {
		t.Fatalf("Purge(web) error = %v", err)
	}
	if !res.LiveRemoved {
		t.Fatal("Purge(web) LiveRemoved = false, want true")
	}
	if _, _, ok := engine.Service("web"); ok {
		t.Fatal("live service still present after Purge")
	}
	if _, ok, _ := store.Get(ctx, "web"); ok {
		t.Fatal("entry still present after Purge")
	}

	res, err = c.Purge(ctx, "api")
	if err != nil {
		t.Fatalf("Purge(api) error = %v", err)
	}
	if res.LiveRemoved {
		t.Fatal("Purge(api) LiveRemoved = true for undeployed service")
	}

	if _, err := c.Purge(ctx, "ghost"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("Purge(ghost) error = %v, want not found", err)
	}
	if calls := engine.Calls("RemoveService"); len(calls) != 2 {
		t.Fatalf("RemoveService calls = %d, want 2", len(calls))
	}
}

func TestPurgeEngineFailureKeepsEntry(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, store, engine := newTestController(t)
	store.Put(entry("web", 3))
	engine.PutService(live("web", 3, 3))
	engine.RemoveServiceErr = func(context.Context, string) error {
		return errdefs.ErrUpstreamUnavailable
	}

	if _, err := c.Purge(ctx, "web"); !errors.Is(err, errdefs.ErrUpstreamUnavailable) {
		t.Fatalf("Purge() error = %v, want upstream unavailable", err)
	}
	if _, ok, _ := store.Get(ctx, "web"); !ok {
		t.Fatal("entry deleted although the live service could not be removed")
	}
}

const importDoc = `
services:
  web:
    image: nginx:1.27
    ports:
      - "8080:80"
  api:
    image: ghcr.io/acme/api:2
    deploy:
      replicas: 2
`

func TestImportReportsPerEntryConflict(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, store, _ := newTestController(t)
	store.Put(entry("web", 1))

	results, err := c.Import(ctx, []byte(importDoc), "shop")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	got := make(map[string]ImportOutcome, len(results))
	for _, r := range results {
		got[r.Name] = r.Outcome
	}
	want := map[string]ImportOutcome{"web": ImportConflict, "api": ImportCreated}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	api, ok, _ := store.Get(ctx, "api")
	if !ok || api.Definition.Replicas != 2 {
		t.Fatalf("imported api = %+v (found=%v), want 2 replicas", api, ok)
	}
}

func TestSeedLeavesExistingEntries(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	c, store, _ := newTestController(t)
	existing := entry("web", 5)
	existing.Status = catalog.StatusRunning
	store.Put(existing)

	added, err := c.Seed(ctx, []catalog.Entry{entry("web", 1), entry("api", 2)})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	web, _, _ := store.Get(ctx, "web")
	if web.Definition.Replicas != 5 || web.Status != catalog.StatusRunning {
		t.Errorf("existing entry overwritten: %+v", web)
	}
}
