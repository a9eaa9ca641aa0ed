package health

import (
	"swarmorch/internal/cluster"
)

// ClusterHealth is the aggregated view of the swarm. Errors collects
// everything that went wrong while aggregating; a non-empty list never
// turns the result into a failure.
type ClusterHealth struct {
	Status       Status         `json:"status"`
	SwarmID      string         `json:"swarm_id"`
	NodeCount    int            `json:"node_count"`
	ServiceCount int            `json:"service_count"`
	Nodes        []cluster.Node `json:"nodes"`
	Errors       []string       `json:"errors"`
}

// DeriveStatus computes the verdict from node states and collected errors.
// Without a ready manager the cluster is unhealthy. Any manager that is not
// ready, any node that is not ready, or any error makes it degraded.
func DeriveStatus(nodes []cluster.Node, errs []string) Status {
	readyManagers := 0
	degraded := len(errs) > 0
	for _, n := range nodes {
		ready := n.Status == cluster.NodeReady
		if n.IsManager() && ready {
			readyManagers++
		}
		if !ready {
			degraded = true
		}
	}
	switch {
	case readyManagers == 0:
		return StatusUnhealthy
	case degraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
