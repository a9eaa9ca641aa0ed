package manager

import (
	"context"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/reconcile"
	"swarmorch/pkg/sdk/types"
)

func (m *Manager) ListServices(ctx context.Context) ([]reconcile.ResolvedService, error) {
	return m.services.List(ctx)
}

func (m *Manager) ListLiveServices(ctx context.Context) ([]cluster.LiveService, error) {
	return m.services.Live(ctx)
}

func (m *Manager) GetService(ctx context.Context, name string) (reconcile.ResolvedService, error) {
	return m.services.Get(ctx, name)
}

func (m *Manager) RegisterService(ctx context.Context, req types.ServiceRequest) (catalog.Entry, error) {
	return m.services.Register(ctx, req.Name, req.Description, req.Definition)
}

func (m *Manager) UpdateService(ctx context.Context, name string, patch types.ServicePatch) (catalog.Entry, error) {
	return m.services.UpdateEntry(ctx, name, reconcile.EntryPatch{
		Description: patch.Description,
		Definition:  patch.Definition,
	})
}

func (m *Manager) DeleteService(ctx context.Context, name string) error {
	return m.services.Delete(ctx, name)
}

func (m *Manager) PurgeService(ctx context.Context, name string) (reconcile.PurgeResult, error) {
	return m.services.Purge(ctx, name)
}

func (m *Manager) ImportCompose(ctx context.Context, compose []byte, project string) ([]reconcile.ImportResult, error) {
	return m.services.Import(ctx, compose, project)
}

func (m *Manager) TriggerReconcile(ctx context.Context) (reconcile.CycleResult, error) {
	return m.services.Reconcile(ctx)
}

func (m *Manager) DeployService(ctx context.Context, name string) (reconcile.DeployResult, error) {
	return m.services.Deploy(ctx, name)
}

func (m *Manager) StopService(ctx context.Context, name string) (reconcile.StopResult, error) {
	return m.services.Stop(ctx, name)
}

func (m *Manager) ScaleService(ctx context.Context, name string, replicas int) (reconcile.ScaleResult, error) {
	return m.services.Scale(ctx, name, replicas)
}

func (m *Manager) ServiceLogs(ctx context.Context, name string, tail int) (types.Logs, error) {
	if tail <= 0 {
		tail = reconcile.DefaultLogTail
	}
	logs, err := m.services.Logs(ctx, name, tail)
	if err != nil {
		return types.Logs{}, err
	}
	return types.Logs{Service: name, Tail: tail, Logs: logs}, nil
}
