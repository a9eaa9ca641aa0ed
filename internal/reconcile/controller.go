package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"swarmorch/internal/catalog"
	"swarmorch/internal/check"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
	"swarmorch/internal/keylock"
	"swarmorch/pkg/sdk/telemetry"
)

// DefaultLogTail is the number of log lines returned when none are requested.
const DefaultLogTail = 100

// Action names the engine call a deploy resolved to.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

type DeployResult struct {
	Name    string `json:"name"`
	SwarmID string `json:"swarm_id"`
	Action  Action `json:"action"`
}

type StopResult struct {
	Name string `json:"name"`
	// Removed is true when the live service was already gone and only the
	// stale reference was cleared.
	Removed bool `json:"removed"`
}

type ScaleResult struct {
	Name     string `json:"name"`
	Replicas int    `json:"replicas"`
	// Live is false when only the stored definition changed.
	Live bool `json:"live"`
}

// Controller executes service commands. Mutations of one service name are
// serialized; different names proceed independently.
type Controller struct {
	store  catalog.Store
	engine cluster.Engine
	locks  *keylock.Map
	tracer trace.Tracer
	log    *slog.Logger
}

type Option func(*Controller)

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func NewController(store catalog.Store, engine cluster.Engine, opts ...Option) *Controller {
	check.Assert(store != nil, "reconcile.NewController: store must not be nil")
	check.Assert(engine != nil, "reconcile.NewController: engine must not be nil")

	c := &Controller{
		store:  store,
		engine: engine,
		locks:  keylock.New(),
		log:    slog.With("component", "reconcile"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every catalog entry resolved against the live services. When
// the engine cannot be reached the stored view is returned unchanged.
func (c *Controller) List(ctx context.Context) ([]ResolvedService, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	live, err := c.engine.ListServices(ctx)
	if err != nil {
		c.log.Warn("live services unavailable, serving stored status", "err", err)
		return storedView(entries), nil
	}
	return Resolve(entries, live), nil
}

// Get resolves a single catalog entry.
func (c *Controller) Get(ctx context.Context, name string) (ResolvedService, error) {
	entry, err := c.lookup(ctx, name)
	if err != nil {
		return ResolvedService{}, err
	}
	live, err := c.engine.ListServices(ctx)
	if err != nil {
		c.log.Warn("live services unavailable, serving stored status", "service", name, "err", err)
		return ResolvedService{Entry: entry}, nil
	}
	return resolveOne(entry, cluster.IndexByName(live)), nil
}

// Live lists the engine's services regardless of the catalog.
func (c *Controller) Live(ctx context.Context) ([]cluster.LiveService, error) {
	live, err := c.engine.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live services: %w", err)
	}
	return live, nil
}

// Deploy creates the live service from the stored definition, or updates it
// when a non-running live service already exists. The stored status is left
// for the next reconciliation cycle to confirm.
func (c *Controller) Deploy(ctx context.Context, name string) (res DeployResult, err error) {
	op, err := telemetry.EmitPlan(ctx, c.tracer, "service.deploy", telemetry.Steps(
		"resolve", "resolve catalog entry against live state",
		"apply", "create or update live service",
		"record", "record swarm reference",
	), attribute.String("service.name", name))
	if err != nil {
		return DeployResult{}, err
	}
	defer func() { op.End(err) }()
	ctx = op.Context()

	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return DeployResult{}, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	var resolved ResolvedService
	if err := op.RunStep(ctx, "resolve", func(ctx context.Context) (err error) {
		resolved, err = c.resolveLocked(ctx, name)
		return err
	}); err != nil {
		return DeployResult{}, err
	}
	if resolved.Status == catalog.StatusRunning {
		return DeployResult{}, fmt.Errorf("service %q is already running: %w", name, errdefs.ErrConflict)
	}

	res = DeployResult{Name: name, Action: ActionCreated}
	if err := op.RunStep(ctx, "apply", func(ctx context.Context) (err error) {
		def := resolved.Definition.Clone()
		if resolved.Live != nil {
			res.Action = ActionUpdated
			res.SwarmID, err = c.engine.UpdateService(ctx, name, def)
		} else {
			res.SwarmID, err = c.engine.CreateService(ctx, name, def)
		}
		if err != nil {
			return fmt.Errorf("deploy service %q: %w", name, err)
		}
		return nil
	}); err != nil {
		return DeployResult{}, err
	}

	if err := op.RunStep(ctx, "record", func(ctx context.Context) error {
		return c.store.SetStatus(ctx, name, deployedStatus(resolved), res.SwarmID)
	}); err != nil {
		return DeployResult{}, fmt.Errorf("record deploy of %q: %w", name, err)
	}

	c.log.Info("service deployed", "service", name, "swarm_id", res.SwarmID, "action", res.Action)
	return res, nil
}

// Stop scales the live service to zero replicas. A service that was deployed
// but has since vanished from the engine has its stale reference cleared.
func (c *Controller) Stop(ctx context.Context, name string) (res StopResult, err error) {
	op, err := telemetry.EmitPlan(ctx, c.tracer, "service.stop", telemetry.Steps(
		"resolve", "resolve catalog entry against live state",
		"scale", "scale live service to zero",
		"record", "record stopped status",
	), attribute.String("service.name", name))
	if err != nil {
		return StopResult{}, err
	}
	defer func() { op.End(err) }()
	ctx = op.Context()

	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return StopResult{}, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	var resolved ResolvedService
	if err := op.RunStep(ctx, "resolve", func(ctx context.Context) (err error) {
		resolved, err = c.resolveLocked(ctx, name)
		return err
	}); err != nil {
		return StopResult{}, err
	}

	res = StopResult{Name: name}
	if resolved.Live == nil {
		stored := resolved.Entry
		if stored.SwarmID == "" {
			return StopResult{}, fmt.Errorf("service %q is not deployed: %w", name, errdefs.ErrNotFound)
		}
		op.Skip("scale", "live service already gone")
		res.Removed = true
		if err := op.RunStep(ctx, "record", func(ctx context.Context) error {
			return c.store.SetStatus(ctx, name, catalog.StatusRegistered, "")
		}); err != nil {
			return StopResult{}, fmt.Errorf("clear reference of %q: %w", name, err)
		}
		c.log.Info("cleared stale service reference", "service", name, "swarm_id", stored.SwarmID)
		return res, nil
	}

	if err := op.RunStep(ctx, "scale", func(ctx context.Context) error {
		return c.engine.ScaleService(ctx, name, 0)
	}); err != nil {
		return StopResult{}, fmt.Errorf("stop service %q: %w", name, err)
	}
	if err := op.RunStep(ctx, "record", func(ctx context.Context) error {
		return c.store.SetStatus(ctx, name, catalog.StatusStopped, resolved.Live.ID)
	}); err != nil {
		return StopResult{}, fmt.Errorf("record stop of %q: %w", name, err)
	}

	c.log.Info("service stopped", "service", name)
	return res, nil
}

// Scale sets the desired replica count in the stored definition and then
// on the live service, if any. When the engine rejects the change the stored
// definition is restored, so both sides keep the previous count.
func (c *Controller) Scale(ctx context.Context, name string, replicas int) (res ScaleResult, err error) {
	if err := catalog.ValidateReplicas(replicas); err != nil {
		return ScaleResult{}, err
	}

	op, err := telemetry.EmitPlan(ctx, c.tracer, "service.scale", telemetry.Steps(
		"resolve", "resolve catalog entry against live state",
		"record", "store replica count",
		"scale", "scale live service",
	), attribute.String("service.name", name), attribute.Int("service.replicas", replicas))
	if err != nil {
		return ScaleResult{}, err
	}
	defer func() { op.End(err) }()
	ctx = op.Context()

	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return ScaleResult{}, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	var resolved ResolvedService
	if err := op.RunStep(ctx, "resolve", func(ctx context.Context) (err error) {
		resolved, err = c.resolveLocked(ctx, name)
		return err
	}); err != nil {
		return ScaleResult{}, err
	}

	previous := resolved.Entry
	entry := previous
	entry.Definition = previous.Definition.Clone()
	entry.Definition.Replicas = replicas
	if err := op.RunStep(ctx, "record", func(ctx context.Context) error {
		_, err := c.store.Update(ctx, entry)
		return err
	}); err != nil {
		return ScaleResult{}, fmt.Errorf("store replicas of %q: %w", name, err)
	}

	res = ScaleResult{Name: name, Replicas: replicas}
	if resolved.Live == nil {
		op.Skip("scale", "service not deployed")
		c.log.Info("service scaled", "service", name, "replicas", replicas, "live", false)
		return res, nil
	}

	res.Live = true
	if err := op.RunStep(ctx, "scale", func(ctx context.Context) error {
		return c.engine.ScaleService(ctx, name, replicas)
	}); err != nil {
		err = fmt.Errorf("scale service %q: %w", name, err)
		if _, rerr := c.store.Update(ctx, previous); rerr != nil {
			c.log.Error("restore stored replicas failed", "service", name, "replicas", previous.Definition.Replicas, "err", rerr)
			return ScaleResult{}, errors.Join(err, fmt.Errorf("restore replicas of %q: %w", name, rerr))
		}
		return ScaleResult{}, err
	}

	c.log.Info("service scaled", "service", name, "replicas", replicas, "live", true)
	return res, nil
}

// Logs returns the last tail lines of the service's output. A non-positive
// tail selects DefaultLogTail.
func (c *Controller) Logs(ctx context.Context, name string, tail int) (string, error) {
	if _, err := c.lookup(ctx, name); err != nil {
		return "", err
	}
	if tail <= 0 {
		tail = DefaultLogTail
	}
	logs, err := c.engine.ServiceLogs(ctx, name, tail)
	if err != nil {
		return "", fmt.Errorf("logs of %q: %w", name, err)
	}
	return logs, nil
}

// resolveLocked reads the entry and live state for name. The caller holds
// the name's lock.
func (c *Controller) resolveLocked(ctx context.Context, name string) (ResolvedService, error) {
	entry, err := c.lookup(ctx, name)
	if err != nil {
		return ResolvedService{}, err
	}
	live, err := c.engine.ListServices(ctx)
	if err != nil {
		return ResolvedService{}, fmt.Errorf("list live services: %w", err)
	}
	return resolveOne(entry, cluster.IndexByName(live)), nil
}

func (c *Controller) lookup(ctx context.Context, name string) (catalog.Entry, error) {
	entry, found, err := c.store.Get(ctx, name)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("read catalog entry %q: %w", name, err)
	}
	if !found {
		return catalog.Entry{}, fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	return entry, nil
}

// deployedStatus is the status recorded next to a fresh swarm reference. It
// is never unknown, so a listing that lags behind the deploy still gets the
// one-cycle grace instead of clearing the new reference.
func deployedStatus(r ResolvedService) catalog.Status {
	if r.Status == catalog.StatusUnknown {
		return catalog.StatusRegistered
	}
	return r.Status
}

func storedView(entries []catalog.Entry) []ResolvedService {
	out := make([]ResolvedService, 0, len(entries))
	for _, e := range entries {
		out = append(out, ResolvedService{Entry: e})
	}
	return out
}
