package manager

import (
	"context"

	"swarmorch/internal/health"
	"swarmorch/pkg/sdk/types"
)

func (m *Manager) Info(context.Context) (types.ServerInfo, error) {
	return types.ServerInfo{Status: "ok", Version: m.version}, nil
}

// ClusterHealth never fails: engine errors are reported inside the result.
func (m *Manager) ClusterHealth(ctx context.Context) (health.ClusterHealth, error) {
	h := m.health.Check(ctx)
	if m.observer != nil {
		m.observer(h.Status)
	}
	return h, nil
}
