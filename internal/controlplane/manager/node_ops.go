package manager

import (
	"context"

	"swarmorch/internal/cluster"
	"swarmorch/internal/nodes"
)

func (m *Manager) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	return m.nodes.List(ctx)
}

func (m *Manager) GetNode(ctx context.Context, ref string) (cluster.Node, error) {
	return m.nodes.Get(ctx, ref)
}

func (m *Manager) DrainNode(ctx context.Context, ref string) (nodes.Result, error) {
	return m.nodes.Drain(ctx, ref)
}

func (m *Manager) ActivateNode(ctx context.Context, ref string) (nodes.Result, error) {
	return m.nodes.Activate(ctx, ref)
}
