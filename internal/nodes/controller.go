// Package nodes moves swarm nodes between the active and drain availability
// states.
package nodes

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"swarmorch/internal/check"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
	"swarmorch/internal/keylock"
	"swarmorch/pkg/sdk/telemetry"
)

// Result reports the outcome of an availability change.
type Result struct {
	Node         string               `json:"node"`
	Hostname     string               `json:"hostname"`
	Availability cluster.Availability `json:"availability"`
	// Changed is false when the node already had the requested availability.
	Changed bool `json:"changed"`
}

// Controller issues availability changes. It does not wait for tasks to be
// rescheduled; evacuation is observed through later health reads.
type Controller struct {
	engine cluster.Engine
	locks  *keylock.Map
	tracer trace.Tracer
	log    *slog.Logger
}

type Option func(*Controller)

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

func NewController(engine cluster.Engine, opts ...Option) *Controller {
	check.Assert(engine != nil, "nodes.NewController: engine must not be nil")

	c := &Controller{
		engine: engine,
		locks:  keylock.New(),
		log:    slog.With("component", "nodes"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) List(ctx context.Context) ([]cluster.Node, error) {
	nodes, err := c.engine.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// Get resolves ref as a node id or hostname.
func (c *Controller) Get(ctx context.Context, ref string) (cluster.Node, error) {
	n, err := c.engine.InspectNode(ctx, ref)
	if err != nil {
		return cluster.Node{}, fmt.Errorf("inspect node %q: %w", ref, err)
	}
	return n, nil
}

// Drain stops new tasks from being scheduled on the node and asks the
// engine to move existing ones away.
func (c *Controller) Drain(ctx context.Context, ref string) (Result, error) {
	return c.setAvailability(ctx, "node.drain", ref, cluster.AvailabilityDrain)
}

// Activate makes the node schedulable again.
func (c *Controller) Activate(ctx context.Context, ref string) (Result, error) {
	return c.setAvailability(ctx, "node.activate", ref, cluster.AvailabilityActive)
}

func (c *Controller) setAvailability(ctx context.Context, opName, ref string, target cluster.Availability) (res Result, err error) {
	op, err := telemetry.EmitPlan(ctx, c.tracer, opName, telemetry.Steps(
		"inspect", "resolve node and current availability",
		"update", "set node availability to "+target.String(),
	), attribute.String("node.ref", ref))
	if err != nil {
		return Result{}, err
	}
	defer func() { op.End(err) }()
	ctx = op.Context()

	var node cluster.Node
	if err := op.RunStep(ctx, "inspect", func(ctx context.Context) (err error) {
		node, err = c.Get(ctx, ref)
		return err
	}); err != nil {
		return Result{}, err
	}

	// Lock on the id so a hostname and an id naming the same node serialize,
	// then re-read under the lock.
	unlock, err := c.locks.Lock(ctx, node.ID)
	if err != nil {
		return Result{}, fmt.Errorf("lock node %q: %w", node.ID, err)
	}
	defer unlock()
	if node, err = c.Get(ctx, node.ID); err != nil {
		return Result{}, err
	}

	res = Result{Node: node.ID, Hostname: node.Hostname, Availability: target}
	switch node.Availability {
	case target:
		op.Skip("update", "already "+target.String())
		c.log.Debug("node availability unchanged", "node", node.ID, "availability", target)
		return res, nil
	case cluster.AvailabilityPause:
		return Result{}, fmt.Errorf("node %q is paused: %w", node.ID, errdefs.ErrConflict)
	}

	if err := op.RunStep(ctx, "update", func(ctx context.Context) error {
		return c.engine.SetNodeAvailability(ctx, node.ID, target)
	}); err != nil {
		return Result{}, fmt.Errorf("set availability of node %q: %w", node.ID, err)
	}

	res.Changed = true
	c.log.Info("node availability set", "node", node.ID, "hostname", node.Hostname, "availability", target)
	return res, nil
}
