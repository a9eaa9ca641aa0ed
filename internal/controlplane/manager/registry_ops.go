package manager

import (
	"context"

	"swarmorch/internal/registry"
)

func (m *Manager) ListRepositories(ctx context.Context) ([]registry.Repository, error) {
	return m.registry.ListRepositories(ctx)
}

func (m *Manager) GetRepository(ctx context.Context, name string) (registry.RepositoryDetail, error) {
	return m.registry.GetDetails(ctx, name)
}

func (m *Manager) ListTags(ctx context.Context, name string) ([]string, error) {
	return m.registry.Tags(ctx, name)
}

func (m *Manager) DeleteTag(ctx context.Context, name, tag string) (registry.DeleteResult, error) {
	return m.registry.DeleteTag(ctx, name, tag)
}
