package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
)

var _ cluster.Engine = (*Engine)(nil)

type serviceState struct {
	live cluster.LiveService
	def  catalog.ServiceDefinition
}

// Engine is an in-memory implementation of cluster.Engine. Services converge
// instantly: running replicas follow desired replicas unless a test pins them
// with SetRunning.
type Engine struct {
	CallRecorder
	mu       sync.Mutex
	swarmID  string
	nodes    map[string]cluster.Node
	services map[string]*serviceState
	tasks    map[string][]cluster.Task
	logs     map[string]string
	pinned   map[string]int
	nextID   int
	now      func() time.Time

	ClusterIDErr           func(ctx context.Context) error
	ListNodesErr           func(ctx context.Context) error
	InspectNodeErr         func(ctx context.Context, ref string) error
	SetNodeAvailabilityErr func(ctx context.Context, nodeID string, availability cluster.Availability) error
	NodeTasksErr           func(ctx context.Context, nodeID string) error
	ListServicesErr        func(ctx context.Context) error
	CreateServiceErr       func(ctx context.Context, name string, def catalog.ServiceDefinition) error
	UpdateServiceErr       func(ctx context.Context, name string, def catalog.ServiceDefinition) error
	ScaleServiceErr        func(ctx context.Context, name string, replicas int) error
	RemoveServiceErr       func(ctx context.Context, name string) error
}

// NewEngine creates an Engine for a swarm with the given id.
func NewEngine(swarmID string) *Engine {
	return &Engine{
		swarmID:  swarmID,
		nodes:    make(map[string]cluster.Node),
		services: make(map[string]*serviceState),
		tasks:    make(map[string][]cluster.Task),
		logs:     make(map[string]string),
		pinned:   make(map[string]int),
		now:      time.Now,
	}
}

// AddNode registers or replaces a node.
func (e *Engine) AddNode(n cluster.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n.Services = nil
	e.nodes[n.ID] = n
}

// AddTask places a running task of the named service on nodeID.
func (e *Engine) AddTask(nodeID, service string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.services[service]
	if !ok {
		panic(fmt.Sprintf("fake.Engine.AddTask: unknown service %q", service))
	}
	e.nextID++
	e.tasks[nodeID] = append(e.tasks[nodeID], cluster.Task{
		ID:        fmt.Sprintf("task-%d", e.nextID),
		ServiceID: st.live.ID,
		NodeID:    nodeID,
		Running:   true,
	})
}

// PutService seeds a live service directly, bypassing CreateService. A
// service seeded below its desired count stays pinned at that running count.
func (e *Engine) PutService(svc cluster.LiveService) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if svc.ID == "" {
		e.nextID++
		svc.ID = fmt.Sprintf("svc-%d", e.nextID)
	}
	e.services[svc.Name] = &serviceState{
		live: svc,
		def:  catalog.ServiceDefinition{Image: svc.Image, Replicas: svc.DesiredReplicas, Ports: slices.Clone(svc.Ports)},
	}
	if svc.RunningReplicas < svc.DesiredReplicas {
		e.pinned[svc.Name] = svc.RunningReplicas
	}
}

// SetRunning pins the running replica count of a service, simulating a
// service that cannot converge.
func (e *Engine) SetRunning(name string, running int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[name] = running
	if st, ok := e.services[name]; ok {
		st.live.RunningReplicas = running
	}
}

// SetLogs sets the log output returned for a service.
func (e *Engine) SetLogs(name, logs string) {
	e.mu.Lock()
	e.logs[name] = logs
	e.mu.Unlock()
}

// Service returns the live service and the definition it was last created
// or updated with.
func (e *Engine) Service(name string) (cluster.LiveService, catalog.ServiceDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.services[name]
	if !ok {
		return cluster.LiveService{}, catalog.ServiceDefinition{}, false
	}
	return cloneLive(st.live), st.def.Clone(), true
}

// Node returns the stored node by id.
func (e *Engine) Node(id string) (cluster.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[id]
	return n, ok
}

func (e *Engine) ClusterID(ctx context.Context) (string, error) {
	e.record("ClusterID")
	if e.ClusterIDErr != nil {
		if err := e.ClusterIDErr(ctx); err != nil {
			return "", err
		}
	}
	return e.swarmID, nil
}

func (e *Engine) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	e.record("ListNodes")
	if e.ListNodesErr != nil {
		if err := e.ListNodesErr(ctx); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := slices.Sorted(maps.Keys(e.nodes))
	out := make([]cluster.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneNode(e.nodes[id]))
	}
	return out, nil
}

func (e *Engine) InspectNode(ctx context.Context, ref string) (cluster.Node, error) {
	e.record("InspectNode", ref)
	if e.InspectNodeErr != nil {
		if err := e.InspectNodeErr(ctx, ref); err != nil {
			return cluster.Node{}, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if n, ok := e.nodes[ref]; ok {
		return cloneNode(n), nil
	}
	for _, n := range e.nodes {
		if n.Hostname == ref {
			return cloneNode(n), nil
		}
	}
	return cluster.Node{}, fmt.Errorf("node %q: %w", ref, errdefs.ErrNotFound)
}

func (e *Engine) SetNodeAvailability(ctx context.Context, nodeID string, availability cluster.Availability) error {
	e.record("SetNodeAvailability", nodeID, availability)
	if e.SetNodeAvailabilityErr != nil {
		if err := e.SetNodeAvailabilityErr(ctx, nodeID, availability); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %q: %w", nodeID, errdefs.ErrNotFound)
	}
	n.Availability = availability
	e.nodes[nodeID] = n
	return nil
}

func (e *Engine) NodeTasks(ctx context.Context, nodeID string) ([]cluster.Task, error) {
	e.record("NodeTasks", nodeID)
	if e.NodeTasksErr != nil {
		if err := e.NodeTasksErr(ctx, nodeID); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.tasks[nodeID]), nil
}

func (e *Engine) ListServices(ctx context.Context) ([]cluster.LiveService, error) {
	e.record("ListServices")
	if e.ListServicesErr != nil {
		if err := e.ListServicesErr(ctx); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	names := slices.Sorted(maps.Keys(e.services))
	out := make([]cluster.LiveService, 0, len(names))
	for _, name := range names {
		out = append(out, cloneLive(e.services[name].live))
	}
	return out, nil
}

func (e *Engine) CreateService(ctx context.Context, name string, def catalog.ServiceDefinition) (string, error) {
	e.record("CreateService", name, def.Replicas)
	if e.CreateServiceErr != nil {
		if err := e.CreateServiceErr(ctx, name, def); err != nil {
			return "", err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.services[name]; ok {
		return "", fmt.Errorf("service %q already exists: %w", name, errdefs.ErrConflict)
	}
	e.nextID++
	st := &serviceState{
		live: cluster.LiveService{
			ID:        fmt.Sprintf("svc-%d", e.nextID),
			Name:      name,
			CreatedAt: e.now().UTC(),
		},
	}
	e.services[name] = st
	e.apply(st, def)
	return st.live.ID, nil
}

func (e *Engine) UpdateService(ctx context.Context, name string, def catalog.ServiceDefinition) (string, error) {
	e.record("UpdateService", name, def.Replicas)
	if e.UpdateServiceErr != nil {
		if err := e.UpdateServiceErr(ctx, name, def); err != nil {
			return "", err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.services[name]
	if !ok {
		return "", fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	e.apply(st, def)
	return st.live.ID, nil
}

func (e *Engine) ScaleService(ctx context.Context, name string, replicas int) error {
	e.record("ScaleService", name, replicas)
	if e.ScaleServiceErr != nil {
		if err := e.ScaleServiceErr(ctx, name, replicas); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.services[name]
	if !ok {
		return fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	st.def.Replicas = replicas
	st.live.DesiredReplicas = replicas
	st.live.RunningReplicas = e.running(name, replicas)
	return nil
}

func (e *Engine) RemoveService(ctx context.Context, name string) error {
	e.record("RemoveService", name)
	if e.RemoveServiceErr != nil {
		if err := e.RemoveServiceErr(ctx, name); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.services[name]; !ok {
		return fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	delete(e.services, name)
	delete(e.pinned, name)
	return nil
}

func (e *Engine) ServiceLogs(_ context.Context, name string, tail int) (string, error) {
	e.record("ServiceLogs", name, tail)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.services[name]; !ok {
		return "", fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	return e.logs[name], nil
}

func (e *Engine) apply(st *serviceState, def catalog.ServiceDefinition) {
	st.def = def.Clone()
	st.live.Image = def.Image
	st.live.Ports = slices.Clone(def.Ports)
	st.live.DesiredReplicas = def.Replicas
	st.live.RunningReplicas = e.running(st.live.Name, def.Replicas)
}

func (e *Engine) running(name string, desired int) int {
	if n, ok := e.pinned[name]; ok {
		return min(n, desired)
	}
	return desired
}

func cloneLive(s cluster.LiveService) cluster.LiveService {
	s.Ports = slices.Clone(s.Ports)
	return s
}

func cloneNode(n cluster.Node) cluster.Node {
	n.Labels = maps.Clone(n.Labels)
	n.Services = nil
	return n
}
