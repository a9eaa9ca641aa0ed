// Package types holds the request and response bodies of the control-plane
// REST API that have no home in a domain package.
package types

import (
	"swarmorch/internal/catalog"
)

// ServerInfo is the liveness answer of GET /health.
type ServerInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ServiceRequest registers a new catalog entry.
type ServiceRequest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Definition  catalog.ServiceDefinition `json:"definition"`
}

// ServicePatch updates an entry. Absent fields are left unchanged.
type ServicePatch struct {
	Description *string                    `json:"description,omitempty"`
	Definition  *catalog.ServiceDefinition `json:"definition,omitempty"`
}

type ScaleRequest struct {
	Replicas int `json:"replicas"`
}

// Logs is the body of GET /services/{name}/logs.
type Logs struct {
	Service string `json:"service"`
	Tail    int    `json:"tail"`
	Logs    string `json:"logs"`
}

// Tags is the tag-name listing of one repository.
type Tags struct {
	Repository string   `json:"repository"`
	Tags       []string `json:"tags"`
}

// Ack acknowledges a command that has no richer result.
type Ack struct {
	Message string `json:"message"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
