package manager

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/trace"

	"swarmorch/config"
	"swarmorch/internal/adapter/docker"
	registryhttp "swarmorch/internal/adapter/registry"
	"swarmorch/internal/adapter/sqlite"
	"swarmorch/internal/buildinfo"
	"swarmorch/internal/catalog"
	"swarmorch/internal/health"
	"swarmorch/internal/nodes"
	"swarmorch/internal/reconcile"
	"swarmorch/internal/registry"
)

// Closer releases the resources NewProduction opened.
type Closer func() error

// NewProduction creates a Manager with the docker engine, the sqlite
// catalog and the HTTP registry client configured by cfg. Definitions found
// in cfg.DefinitionsDir are seeded into the catalog.
func NewProduction(ctx context.Context, cfg config.Server, tracer trace.Tracer, observer HealthObserver) (*Manager, Closer, error) {
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	engine, err := docker.NewEngine(cfg.DockerHost)
	if err != nil {
		_ = store.Close() // best-effort cleanup
		return nil, nil, err
	}
	closer := func() error {
		return errors.Join(engine.Close(), store.Close())
	}

	regClient, err := registryhttp.New(registryhttp.Config{
		URL:      cfg.RegistryURL,
		Username: cfg.RegistryUsername,
		Password: cfg.RegistryPassword,
	})
	if err != nil {
		_ = closer() // best-effort cleanup
		return nil, nil, err
	}

	services := reconcile.NewController(store, engine, reconcile.WithTracer(tracer))
	if err := seedDefinitions(ctx, services, cfg.DefinitionsDir); err != nil {
		_ = closer() // best-effort cleanup
		return nil, nil, err
	}

	var clock *health.ClockChecker
	healthOpts := []health.Option{
		health.WithNodeConcurrency(cfg.NodeConcurrency),
		health.WithNodeTimeout(cfg.NodeTimeout),
		health.WithAggregateTimeout(cfg.AggregateTimeout),
	}
	if cfg.NTPServer != "" {
		clock = health.NewClockChecker(cfg.NTPServer, cfg.NTPThreshold, health.SystemClock{})
		healthOpts = append(healthOpts, health.WithClockSource(clock))
	}

	m, err := New(
		WithServices(services),
		WithNodes(nodes.NewController(engine, nodes.WithTracer(tracer))),
		WithHealth(health.NewAggregator(engine, healthOpts...)),
		WithRegistry(registry.NewIndexer(regClient,
			registry.WithConcurrency(cfg.RegistryConcurrency),
			registry.WithCaches(
				registry.NewCache[registry.RepositoryDetail](registry.WithTTL(cfg.RegistryCacheTTL)),
				registry.NewCache[[]registry.Repository](registry.WithTTL(cfg.RegistryCacheTTL)),
			),
		)),
		WithLoop(&reconcile.Loop{Controller: services, Interval: cfg.ReconcileInterval}),
		WithClockChecker(clock),
		WithHealthObserver(observer),
		WithVersion(buildinfo.String()),
	)
	if err != nil {
		_ = closer() // best-effort cleanup
		return nil, nil, err
	}
	return m, closer, nil
}

func seedDefinitions(ctx context.Context, services *reconcile.Controller, dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	entries, err := catalog.LoadDefinitionsDir(dir)
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}
	if _, err := services.Seed(ctx, entries); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}
