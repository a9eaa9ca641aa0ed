// Package health aggregates node and service state into a cluster verdict.
package health

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"swarmorch/internal/check"
	"swarmorch/internal/cluster"
)

const (
	DefaultNodeConcurrency  = 8
	DefaultNodeTimeout      = 5 * time.Second
	DefaultAggregateTimeout = 15 * time.Second
)

// ClockSource reports a control-plane clock problem, or "" when there is
// none to report.
type ClockSource interface {
	Problem() string
}

// Aggregator queries every node's task placements on a bounded pool.
type Aggregator struct {
	engine           cluster.Engine
	nodeConcurrency  int
	nodeTimeout      time.Duration
	aggregateTimeout time.Duration
	clock            ClockSource
	log              *slog.Logger
}

type Option func(*Aggregator)

func WithNodeConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.nodeConcurrency = n
		}
	}
}

func WithNodeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.nodeTimeout = d
		}
	}
}

func WithAggregateTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.aggregateTimeout = d
		}
	}
}

func WithClockSource(c ClockSource) Option {
	return func(a *Aggregator) { a.clock = c }
}

func NewAggregator(engine cluster.Engine, opts ...Option) *Aggregator {
	check.Assert(engine != nil, "health.NewAggregator: engine must not be nil")

	a := &Aggregator{
		engine:           engine,
		nodeConcurrency:  DefaultNodeConcurrency,
		nodeTimeout:      DefaultNodeTimeout,
		aggregateTimeout: DefaultAggregateTimeout,
		log:              slog.With("component", "health"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check reads the swarm id, nodes and services from the engine and
// aggregates them. Listing failures land in Errors.
func (a *Aggregator) Check(ctx context.Context) ClusterHealth {
	ctx, cancel := context.WithTimeout(ctx, a.aggregateTimeout)
	defer cancel()

	var errs []string
	swarmID, err := a.engine.ClusterID(ctx)
	if err != nil {
		errs = append(errs, fmt.Sprintf("swarm: %v", err))
	}
	nodes, err := a.engine.ListNodes(ctx)
	if err != nil {
		errs = append(errs, fmt.Sprintf("list nodes: %v", err))
	}
	services, err := a.engine.ListServices(ctx)
	if err != nil {
		errs = append(errs, fmt.Sprintf("list services: %v", err))
	}

	h := a.Aggregate(ctx, nodes, services)
	h.SwarmID = swarmID
	h.Errors = append(errs, h.Errors...)
	if a.clock != nil {
		if p := a.clock.Problem(); p != "" {
			h.Errors = append(h.Errors, p)
		}
	}
	if h.Errors == nil {
		h.Errors = []string{}
	}
	h.Status = DeriveStatus(h.Nodes, h.Errors)
	return h
}

// Aggregate joins each node's task placements with services. A node whose
// query fails or exceeds the per-node timeout is reported as unknown, with
// no service list, and an entry in Errors; the other nodes are unaffected.
func (a *Aggregator) Aggregate(ctx context.Context, nodes []cluster.Node, services []cluster.LiveService) ClusterHealth {
	byID := cluster.IndexByID(services)
	out := make([]cluster.Node, len(nodes))
	nodeErrs := make([]string, len(nodes))

	var g errgroup.Group
	g.SetLimit(a.nodeConcurrency)
	for i, n := range nodes {
		g.Go(func() error {
			out[i], nodeErrs[i] = a.inspectNode(ctx, n, byID)
			return nil
		})
	}
	_ = g.Wait()

	errs := []string{}
	for _, e := range nodeErrs {
		if e != "" {
			errs = append(errs, e)
		}
	}

	return ClusterHealth{
		Status:       DeriveStatus(out, errs),
		NodeCount:    len(out),
		ServiceCount: len(services),
		Nodes:        out,
		Errors:       errs,
	}
}

func (a *Aggregator) inspectNode(ctx context.Context, n cluster.Node, byID map[string]cluster.LiveService) (cluster.Node, string) {
	ctx, cancel := context.WithTimeout(ctx, a.nodeTimeout)
	defer cancel()

	tasks, err := a.engine.NodeTasks(ctx, n.ID)
	if err != nil {
		n.Status = cluster.NodeUnknown
		n.Services = nil
		msg := fmt.Sprintf("node %s (%s): %v", n.Hostname, n.ID, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("node %s (%s): timed out after %s", n.Hostname, n.ID, a.nodeTimeout)
		}
		a.log.Warn("node query failed", "node", n.ID, "hostname", n.Hostname, "err", err)
		return n, msg
	}
	n.Services = placements(tasks, byID)
	return n, ""
}

// placements counts running tasks per service. Tasks of services missing
// from the listing are ignored.
func placements(tasks []cluster.Task, byID map[string]cluster.LiveService) []cluster.NodeService {
	counts := make(map[string]int)
	for _, t := range tasks {
		if _, ok := byID[t.ServiceID]; ok && t.Running {
			counts[t.ServiceID]++
		}
	}

	out := make([]cluster.NodeService, 0, len(counts))
	for id, count := range counts {
		svc := byID[id]
		out = append(out, cluster.NodeService{Name: svc.Name, Image: svc.Image, Replicas: count})
	}
	slices.SortFunc(out, func(a, b cluster.NodeService) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
