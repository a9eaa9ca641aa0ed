package cluster

import (
	"context"

	"swarmorch/internal/catalog"
)

// Engine queries and mutates the clustered container runtime.
// Production: adapter/docker.Engine
// Testing: adapter/fake.Engine
//
// Implementations translate failures into errdefs kinds: an absent node or
// service is errdefs.ErrNotFound, an unreachable engine is
// errdefs.ErrUpstreamUnavailable.
type Engine interface {
	ClusterID(ctx context.Context) (string, error)
	ListNodes(ctx context.Context) ([]Node, error)
	// InspectNode resolves ref as a node id or hostname.
	InspectNode(ctx context.Context, ref string) (Node, error)
	SetNodeAvailability(ctx context.Context, nodeID string, availability Availability) error
	// NodeTasks lists tasks whose desired state is running on nodeID.
	NodeTasks(ctx context.Context, nodeID string) ([]Task, error)

	ListServices(ctx context.Context) ([]LiveService, error)
	CreateService(ctx context.Context, name string, def catalog.ServiceDefinition) (string, error)
	UpdateService(ctx context.Context, name string, def catalog.ServiceDefinition) (string, error)
	ScaleService(ctx context.Context, name string, replicas int) error
	RemoveService(ctx context.Context, name string) error
	ServiceLogs(ctx context.Context, name string, tail int) (string, error)
}
