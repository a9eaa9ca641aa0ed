package cluster

import "time"

// LiveService is a service as currently reported by the engine. It is never
// persisted; callers re-fetch it.
type LiveService struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Image             string    `json:"image"`
	DesiredReplicas   int       `json:"replicas"`
	RunningReplicas   int       `json:"running_replicas"`
	CompletedReplicas int       `json:"completed_replicas"`
	Ports             []string  `json:"ports"`
	CreatedAt         time.Time `json:"created_at"`
}

// Task is a single scheduled replica.
type Task struct {
	ID        string `json:"id"`
	ServiceID string `json:"service_id"`
	NodeID    string `json:"node_id"`
	Running   bool   `json:"running"`
}

// IndexByName returns live services keyed by name.
func IndexByName(services []LiveService) map[string]LiveService {
	out := make(map[string]LiveService, len(services))
	for _, s := range services {
		out[s.Name] = s
	}
	return out
}

// IndexByID returns live services keyed by id.
func IndexByID(services []LiveService) map[string]LiveService {
	out := make(map[string]LiveService, len(services))
	for _, s := range services {
		out[s.ID] = s
	}
	return out
}
