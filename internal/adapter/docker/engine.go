// Package docker implements cluster.Engine against the Docker Engine swarm API.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
)

var _ cluster.Engine = (*Engine)(nil)

// Engine talks to a swarm manager's docker daemon.
type Engine struct {
	cli client.APIClient
	log *slog.Logger
}

// NewEngine creates an Engine with a docker client configured from the
// environment (DOCKER_HOST and friends). A non-empty host overrides it.
func NewEngine(host string) (*Engine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewEngineFromClient(cli), nil
}

// NewEngineFromClient wraps an existing docker client.
func NewEngineFromClient(cli client.APIClient) *Engine {
	return &Engine{cli: cli, log: slog.With("component", "docker")}
}

func (e *Engine) WaitReady(ctx context.Context) error {
	return WaitReady(ctx, e.cli)
}

func (e *Engine) Close() error {
	return e.cli.Close()
}

func (e *Engine) ClusterID(ctx context.Context) (string, error) {
	sw, err := read(ctx, "inspect swarm", func(ctx context.Context) (swarm.Swarm, error) {
		return e.cli.SwarmInspect(ctx)
	})
	if err != nil {
		return "", err
	}
	return sw.ID, nil
}

func (e *Engine) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	nodes, err := read(ctx, "list nodes", func(ctx context.Context) ([]swarm.Node, error) {
		return e.cli.NodeList(ctx, swarm.NodeListOptions{})
	})
	if err != nil {
		return nil, err
	}
	out := make([]cluster.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeFromSwarm(n))
	}
	return out, nil
}

func (e *Engine) InspectNode(ctx context.Context, ref string) (cluster.Node, error) {
	n, err := e.inspectNode(ctx, ref)
	if err != nil {
		return cluster.Node{}, err
	}
	return nodeFromSwarm(n), nil
}

// inspectNode resolves ref as an id first, then as a hostname.
func (e *Engine) inspectNode(ctx context.Context, ref string) (swarm.Node, error) {
	n, err := read(ctx, "inspect node "+ref, func(ctx context.Context) (swarm.Node, error) {
		n, _, err := e.cli.NodeInspectWithRaw(ctx, ref)
		return n, err
	})
	if err == nil || !errdefs.IsNotFound(err) {
		return n, err
	}

	nodes, listErr := read(ctx, "list nodes", func(ctx context.Context) ([]swarm.Node, error) {
		return e.cli.NodeList(ctx, swarm.NodeListOptions{})
	})
	if listErr != nil {
		return swarm.Node{}, listErr
	}
	for _, n := range nodes {
		if n.Description.Hostname == ref {
			return n, nil
		}
	}
	return swarm.Node{}, fmt.Errorf("node %q: %w", ref, errdefs.ErrNotFound)
}

func (e *Engine) SetNodeAvailability(ctx context.Context, nodeID string, availability cluster.Availability) error {
	n, err := e.inspectNode(ctx, nodeID)
	if err != nil {
		return err
	}
	spec := n.Spec
	spec.Availability = swarm.NodeAvailability(availability.String())
	if err := e.cli.NodeUpdate(ctx, n.ID, n.Version, spec); err != nil {
		return fmt.Errorf("update node %s: %w", n.ID, wrapErr(err))
	}
	e.log.Info("node availability changed", "node", n.ID, "hostname", n.Description.Hostname, "availability", availability)
	return nil
}

func (e *Engine) NodeTasks(ctx context.Context, nodeID string) ([]cluster.Task, error) {
	args := filters.NewArgs(
		filters.Arg("node", nodeID),
		filters.Arg("desired-state", string(swarm.TaskStateRunning)),
	)
	tasks, err := read(ctx, "list tasks on "+nodeID, func(ctx context.Context) ([]swarm.Task, error) {
		return e.cli.TaskList(ctx, swarm.TaskListOptions{Filters: args})
	})
	if err != nil {
		return nil, err
	}
	out := make([]cluster.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, cluster.Task{
			ID:        t.ID,
			ServiceID: t.ServiceID,
			NodeID:    t.NodeID,
			Running:   t.Status.State == swarm.TaskStateRunning,
		})
	}
	return out, nil
}

func (e *Engine) ListServices(ctx context.Context) ([]cluster.LiveService, error) {
	services, err := read(ctx, "list services", func(ctx context.Context) ([]swarm.Service, error) {
		return e.cli.ServiceList(ctx, swarm.ServiceListOptions{Status: true})
	})
	if err != nil {
		return nil, err
	}
	out := make([]cluster.LiveService, 0, len(services))
	for _, s := range services {
		out = append(out, liveFromSwarm(s))
	}
	return out, nil
}

func (e *Engine) CreateService(ctx context.Context, name string, def catalog.ServiceDefinition) (string, error) {
	spec, err := serviceSpec(name, def)
	if err != nil {
		return "", err
	}
	resp, err := e.cli.ServiceCreate(ctx, spec, swarm.ServiceCreateOptions{})
	if err != nil {
		return "", fmt.Errorf("create service %s: %w", name, wrapErr(err))
	}
	for _, w := range resp.Warnings {
		e.log.Warn("service create warning", "service", name, "warning", w)
	}
	e.log.Info("service created", "service", name, "id", resp.ID, "image", def.Image, "replicas", def.Replicas)
	return resp.ID, nil
}

func (e *Engine) UpdateService(ctx context.Context, name string, def catalog.ServiceDefinition) (string, error) {
	current, err := e.inspectService(ctx, name)
	if err != nil {
		return "", err
	}
	spec, err := serviceSpec(name, def)
	if err != nil {
		return "", err
	}
	// Keep the engine's bookkeeping fields so the update is not seen as a
	// foreign spec.
	spec.TaskTemplate.ForceUpdate = current.Spec.TaskTemplate.ForceUpdate
	spec.UpdateConfig = current.Spec.UpdateConfig
	spec.RollbackConfig = current.Spec.RollbackConfig

	if err := e.updateService(ctx, current, spec); err != nil {
		return "", err
	}
	e.log.Info("service updated", "service", name, "id", current.ID, "image", def.Image, "replicas", def.Replicas)
	return current.ID, nil
}

func (e *Engine) ScaleService(ctx context.Context, name string, replicas int) error {
	if err := catalog.ValidateReplicas(replicas); err != nil {
		return err
	}
	current, err := e.inspectService(ctx, name)
	if err != nil {
		return err
	}
	if current.Spec.Mode.Replicated == nil {
		return fmt.Errorf("scale service %s: not a replicated service: %w", name, errdefs.ErrConflict)
	}
	spec := current.Spec
	n := uint64(replicas)
	spec.Mode.Replicated = &swarm.ReplicatedService{Replicas: &n}
	if err := e.updateService(ctx, current, spec); err != nil {
		return err
	}
	e.log.Info("service scaled", "service", name, "replicas", replicas)
	return nil
}

func (e *Engine) RemoveService(ctx context.Context, name string) error {
	if err := e.cli.ServiceRemove(ctx, name); err != nil {
		return fmt.Errorf("remove service %s: %w", name, wrapErr(err))
	}
	e.log.Info("service removed", "service", name)
	return nil
}

func (e *Engine) ServiceLogs(ctx context.Context, name string, tail int) (string, error) {
	if _, err := e.inspectService(ctx, name); err != nil {
		return "", err
	}
	rc, err := e.cli.ServiceLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("service logs %s: %w", name, wrapErr(err))
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", fmt.Errorf("read service logs %s: %w", name, wrapErr(err))
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func (e *Engine) inspectService(ctx context.Context, name string) (swarm.Service, error) {
	return read(ctx, "inspect service "+name, func(ctx context.Context) (swarm.Service, error) {
		s, _, err := e.cli.ServiceInspectWithRaw(ctx, name, swarm.ServiceInspectOptions{})
		return s, err
	})
}

func (e *Engine) updateService(ctx context.Context, current swarm.Service, spec swarm.ServiceSpec) error {
	resp, err := e.cli.ServiceUpdate(ctx, current.ID, current.Version, spec, swarm.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("update service %s: %w", current.Spec.Name, wrapErr(err))
	}
	for _, w := range resp.Warnings {
		e.log.Warn("service update warning", "service", current.Spec.Name, "warning", w)
	}
	return nil
}
