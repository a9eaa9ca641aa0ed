// Package manager composes the control-plane components behind the
// client.API surface.
package manager

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"swarmorch/internal/buildinfo"
	"swarmorch/internal/health"
	"swarmorch/internal/nodes"
	"swarmorch/internal/reconcile"
	"swarmorch/internal/registry"
	"swarmorch/pkg/sdk/client"
)

// Compile-time check: Manager implements client.API.
var _ client.API = (*Manager)(nil)

// HealthObserver receives every aggregated cluster status.
type HealthObserver func(health.Status)

type Manager struct {
	version  string
	services *reconcile.Controller
	nodes    *nodes.Controller
	health   *health.Aggregator
	registry *registry.Indexer

	loop     *reconcile.Loop
	clock    *health.ClockChecker
	observer HealthObserver
	log      *slog.Logger
}

type managerCfg struct {
	services *reconcile.Controller
	nodes    *nodes.Controller
	health   *health.Aggregator
	registry *registry.Indexer
	loop     *reconcile.Loop
	clock    *health.ClockChecker
	observer HealthObserver
	version  string
}

// Option configures a Manager.
type Option func(*managerCfg)

func WithServices(c *reconcile.Controller) Option {
	return func(cfg *managerCfg) { cfg.services = c }
}

func WithNodes(c *nodes.Controller) Option {
	return func(cfg *managerCfg) { cfg.nodes = c }
}

func WithHealth(a *health.Aggregator) Option {
	return func(cfg *managerCfg) { cfg.health = a }
}

func WithRegistry(ix *registry.Indexer) Option {
	return func(cfg *managerCfg) { cfg.registry = ix }
}

// WithLoop runs the confirmation loop from Run.
func WithLoop(l *reconcile.Loop) Option {
	return func(cfg *managerCfg) { cfg.loop = l }
}

// WithClockChecker runs the NTP checker from Run.
func WithClockChecker(c *health.ClockChecker) Option {
	return func(cfg *managerCfg) { cfg.clock = c }
}

func WithHealthObserver(fn HealthObserver) Option {
	return func(cfg *managerCfg) { cfg.observer = fn }
}

func WithVersion(v string) Option {
	return func(cfg *managerCfg) { cfg.version = v }
}

func New(opts ...Option) (*Manager, error) {
	cfg := managerCfg{version: buildinfo.String()}
	for _, o := range opts {
		o(&cfg)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Manager{
		version:  cfg.version,
		services: cfg.services,
		nodes:    cfg.nodes,
		health:   cfg.health,
		registry: cfg.registry,
		loop:     cfg.loop,
		clock:    cfg.clock,
		observer: cfg.observer,
		log:      slog.With("component", "manager"),
	}, nil
}

func validateConfig(cfg managerCfg) error {
	var errs []error
	if cfg.services == nil {
		errs = append(errs, errors.New("service controller is required"))
	}
	if cfg.nodes == nil {
		errs = append(errs, errors.New("node controller is required"))
	}
	if cfg.health == nil {
		errs = append(errs, errors.New("health aggregator is required"))
	}
	if cfg.registry == nil {
		errs = append(errs, errors.New("registry indexer is required"))
	}
	return errors.Join(errs...)
}

// Run drives the background workers until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if m.loop != nil {
		g.Go(func() error {
			err := m.loop.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if m.clock != nil {
		g.Go(func() error {
			m.clock.Run(ctx)
			return nil
		})
	}
	err := g.Wait()
	m.log.Info("stopping")
	return err
}
