// Package daemon runs the control plane: background workers, the REST API
// and the gRPC health listener.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"swarmorch/config"
	"swarmorch/internal/controlplane/api"
	"swarmorch/internal/controlplane/manager"
)

// Run starts the manager's workers, the API listeners, and the systemd
// notification, then blocks until ctx is cancelled.
func Run(ctx context.Context, cfg config.Server) error {
	tracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown", "err", err)
		}
	}()

	hs := api.NewHealthService()
	mgr, closeMgr, err := manager.NewProduction(ctx, cfg, tracing.Tracer(), hs.Observe)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeMgr(); err != nil {
			slog.Warn("close manager", "err", err)
		}
	}()

	srv := api.New(mgr, api.WithHealthService(hs))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting control plane", "docker_host", cfg.DockerHost, "registry", cfg.RegistryURL, "database", cfg.DatabasePath)
		return mgr.Run(ctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Listen, cfg.GRPCAddr, func() {
			if _, err := systemd.SdNotify(false, systemd.SdNotifyReady); err != nil {
				slog.Error("failed to notify systemd that the daemon is ready", "err", err)
			}
		})
	})
	g.Go(func() error {
		hs.Poll(ctx, cfg.ReconcileInterval, func(ctx context.Context) {
			_, _ = mgr.ClusterHealth(ctx) // never fails; the observer publishes the verdict
		})
		return nil
	})

	err = g.Wait()
	_, _ = systemd.SdNotify(false, systemd.SdNotifyStopping)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
