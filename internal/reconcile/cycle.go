package reconcile

import (
	"context"
	"fmt"
	"time"

	"swarmorch/internal/cluster"
)

// DefaultInterval is the period of the confirmation loop.
const DefaultInterval = 30 * time.Second

// CycleResult summarizes one reconciliation cycle.
type CycleResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
}

// Reconcile resolves the catalog against the live services once and
// persists entries whose status or swarm reference changed. If the live
// services cannot be listed nothing is persisted.
func (c *Controller) Reconcile(ctx context.Context) (CycleResult, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("list catalog: %w", err)
	}
	live, err := c.engine.ListServices(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("list live services: %w", err)
	}

	byName := cluster.IndexByName(live)
	res := CycleResult{Checked: len(entries)}
	for _, e := range entries {
		if !resolveOne(e, byName).changed(e) {
			continue
		}
		updated, err := c.persistResolved(ctx, e.Name, byName)
		if err != nil {
			return res, err
		}
		if updated {
			res.Updated++
		}
	}
	return res, nil
}

// persistResolved re-reads the entry under its lock so a command that ran
// since the listing is not overwritten with an older view.
func (c *Controller) persistResolved(ctx context.Context, name string, byName map[string]cluster.LiveService) (bool, error) {
	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return false, fmt.Errorf("lock service %q: %w", name, err)
	}
	defer unlock()

	entry, found, err := c.store.Get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("read catalog entry %q: %w", name, err)
	}
	if !found {
		return false, nil
	}
	r := resolveOne(entry, byName)
	if !r.changed(entry) {
		return false, nil
	}
	if err := c.store.SetStatus(ctx, name, r.Status, r.SwarmID); err != nil {
		return false, fmt.Errorf("persist status of %q: %w", name, err)
	}
	c.log.Debug("service status changed", "service", name, "from", entry.Status, "to", r.Status, "swarm_id", r.SwarmID)
	return true, nil
}

// Loop runs Reconcile on a fixed interval.
type Loop struct {
	Controller *Controller
	Interval   time.Duration
	// OnCycle observes every cycle's outcome.
	OnCycle func(CycleResult, error)
}

// Run reconciles immediately and then every Interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	l.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	res, err := l.Controller.Reconcile(ctx)
	if err != nil {
		l.Controller.log.Warn("reconcile cycle skipped", "err", err)
	} else if res.Updated > 0 {
		l.Controller.log.Info("reconcile cycle", "checked", res.Checked, "updated", res.Updated)
	}
	if l.OnCycle != nil {
		l.OnCycle(res, err)
	}
}
