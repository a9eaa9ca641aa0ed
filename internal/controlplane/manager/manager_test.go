package manager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"swarmorch/internal/adapter/fake"
	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
	"swarmorch/internal/health"
	"swarmorch/internal/nodes"
	"swarmorch/internal/reconcile"
	"swarmorch/internal/registry"
	"swarmorch/pkg/sdk/types"
)

type harness struct {
	manager  *Manager
	engine   *fake.Engine
	store    *fake.CatalogStore
	registry *fake.Registry
}

func newHarness(t *testing.T, opts ...Option) harness {
	t.Helper()
	engine := fake.NewEngine("swarm-1")
	engine.AddNode(cluster.Node{ID: "m1", Hostname: "mgr-1", Role: cluster.RoleManager, Status: cluster.NodeReady})
	store := fake.NewCatalogStore()
	reg := fake.NewRegistry()

	services := reconcile.NewController(store, engine)
	base := []Option{
		WithServices(services),
		WithNodes(nodes.NewController(engine)),
		WithHealth(health.NewAggregator(engine)),
		WithRegistry(registry.NewIndexer(reg)),
		WithVersion("test"),
	}
	m, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return harness{manager: m, engine: engine, store: store, registry: reg}
}

func TestNewRequiresComponents(t *testing.T) {
	t.Parallel()
	_, err := New(WithVersion("test"))
	if err == nil {
		t.Fatal("New() error = nil, want missing components")
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	info, err := h.manager.Info(t.Context())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info != (types.ServerInfo{Status: "ok", Version: "test"}) {
		t.Fatalf("Info() = %+v", info)
	}
}

func TestClusterHealthNotifiesObserver(t *testing.T) {
	t.Parallel()
	var seen atomic.Int32
	var last atomic.Value
	h := newHarness(t, WithHealthObserver(func(s health.Status) {
		seen.Add(1)
		last.Store(s)
	}))

	got, err := h.manager.ClusterHealth(t.Context())
	if err != nil {
		t.Fatalf("ClusterHealth() error = %v", err)
	}
	if got.Status != health.StatusHealthy || got.SwarmID != "swarm-1" || got.NodeCount != 1 {
		t.Fatalf("ClusterHealth() = %+v", got)
	}
	if seen.Load() != 1 || last.Load() != health.StatusHealthy {
		t.Fatalf("observer calls = %d last = %v", seen.Load(), last.Load())
	}
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := t.Context()

	_, err := h.manager.RegisterService(ctx, types.ServiceRequest{
		Name:       "web",
		Definition: catalog.ServiceDefinition{Image: "nginx:1.27", Replicas: 2},
	})
	if err != nil {
		t.Fatalf("RegisterService() error = %v", err)
	}

	if _, err := h.manager.DeployService(ctx, "web"); err != nil {
		t.Fatalf("DeployService() error = %v", err)
	}
	if _, err := h.manager.TriggerReconcile(ctx); err != nil {
		t.Fatalf("TriggerReconcile() error = %v", err)
	}
	svc, err := h.manager.GetService(ctx, "web")
	if err != nil {
		t.Fatalf("GetService() error = %v", err)
	}
	if svc.Status != catalog.StatusRunning || svc.Live == nil {
		t.Fatalf("GetService() status = %v live = %v, want running", svc.Status, svc.Live)
	}

	scaled, err := h.manager.ScaleService(ctx, "web", 3)
	if err != nil {
		t.Fatalf("ScaleService() error = %v", err)
	}
	if !scaled.Live || scaled.Replicas != 3 {
		t.Fatalf("ScaleService() = %+v", scaled)
	}

	desc := "front door"
	updated, err := h.manager.UpdateService(ctx, "web", types.ServicePatch{Description: &desc})
	if err != nil {
		t.Fatalf("UpdateService() error = %v", err)
	}
	if updated.Description != desc || updated.Definition.Replicas != 3 {
		t.Fatalf("UpdateService() = %+v", updated)
	}

	if _, err := h.manager.StopService(ctx, "web"); err != nil {
		t.Fatalf("StopService() error = %v", err)
	}
	if err := h.manager.DeleteService(ctx, "web"); err != nil {
		t.Fatalf("DeleteService() error = %v", err)
	}
	if _, err := h.manager.GetService(ctx, "web"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("GetService() after delete error = %v, want not found", err)
	}
}

func TestServiceLogsDefaultsTail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.Put(catalog.Entry{Name: "api", Definition: catalog.ServiceDefinition{Image: "api:1", Replicas: 1}})
	h.engine.PutService(cluster.LiveService{Name: "api", Image: "api:1", DesiredReplicas: 1})
	h.engine.SetLogs("api", "line one\nline two")

	logs, err := h.manager.ServiceLogs(t.Context(), "api", 0)
	if err != nil {
		t.Fatalf("ServiceLogs() error = %v", err)
	}
	if logs.Tail != reconcile.DefaultLogTail || logs.Service != "api" || logs.Logs != "line one\nline two" {
		t.Fatalf("ServiceLogs() = %+v", logs)
	}
}

func TestNodeOperations(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.engine.AddNode(cluster.Node{ID: "w1", Hostname: "wrk-1", Status: cluster.NodeReady})

	res, err := h.manager.DrainNode(t.Context(), "wrk-1")
	if err != nil {
		t.Fatalf("DrainNode() error = %v", err)
	}
	if !res.Changed || res.Availability != cluster.AvailabilityDrain {
		t.Fatalf("DrainNode() = %+v", res)
	}
	n, err := h.manager.GetNode(t.Context(), "w1")
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if n.Availability != cluster.AvailabilityDrain {
		t.Fatalf("GetNode() availability = %v, want drain", n.Availability)
	}
	list, err := h.manager.ListNodes(t.Context())
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListNodes() = %d nodes, want 2", len(list))
	}
}

func TestRegistryOperations(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.registry.PutTag("team/app", "v1", registry.Manifest{Size: 10})
	h.registry.PutTag("team/app", "v2", registry.Manifest{Size: 20})

	repos, err := h.manager.ListRepositories(t.Context())
	if err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}
	if len(repos) != 1 || repos[0].Name != "team/app" {
		t.Fatalf("ListRepositories() = %+v", repos)
	}
	detail, err := h.manager.GetRepository(t.Context(), "team/app")
	if err != nil {
		t.Fatalf("GetRepository() error = %v", err)
	}
	if detail.TagCount != 2 {
		t.Fatalf("GetRepository() tag count = %d, want 2", detail.TagCount)
	}
	res, err := h.manager.DeleteTag(t.Context(), "team/app", "v1")
	if err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
	if res.RepositoryEmpty {
		t.Fatal("DeleteTag() reported empty repository, want v2 left")
	}
	tags, err := h.manager.ListTags(t.Context(), "team/app")
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0] != "v2" {
		t.Fatalf("ListTags() = %v, want [v2]", tags)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	cycles := make(chan struct{}, 1)
	engine := fake.NewEngine("swarm-1")
	services := reconcile.NewController(fake.NewCatalogStore(), engine)
	h := newHarness(t, WithLoop(&reconcile.Loop{
		Controller: services,
		Interval:   time.Hour,
		OnCycle: func(reconcile.CycleResult, error) {
			select {
			case cycles <- struct{}{}:
			default:
			}
		},
	}))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- h.manager.Run(ctx) }()

	select {
	case <-cycles:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not run a cycle")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
