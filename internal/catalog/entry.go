package catalog

import (
	"encoding/json"
	"time"
)

// MaxReplicas bounds the replica count a definition or scale request may ask for.
const MaxReplicas = 100

// ServiceDefinition is the user-declared shape of a service.
type ServiceDefinition struct {
	Image        string            `json:"image" yaml:"image"`
	Replicas     int               `json:"replicas" yaml:"replicas"`
	Ports        []string          `json:"ports" yaml:"ports,omitempty"`
	Env          map[string]string `json:"env" yaml:"env,omitempty"`
	Constraints  []string          `json:"constraints" yaml:"constraints,omitempty"`
	Labels       map[string]string `json:"labels" yaml:"labels,omitempty"`
	Networks     []string          `json:"networks" yaml:"networks,omitempty"`
	Mounts       []string          `json:"mounts" yaml:"mounts,omitempty"`
	Command      string            `json:"command,omitempty" yaml:"command,omitempty"`
	BuildContext string            `json:"build_context,omitempty" yaml:"build_context,omitempty"`
}

// DefaultDefinition returns a definition with the defaults applied before
// decoding user input.
func DefaultDefinition() ServiceDefinition {
	return ServiceDefinition{Replicas: 1}
}

// Clone returns a deep copy so callers can mutate without aliasing stored maps.
func (d ServiceDefinition) Clone() ServiceDefinition {
	out := d
	out.Ports = append([]string(nil), d.Ports...)
	out.Constraints = append([]string(nil), d.Constraints...)
	out.Networks = append([]string(nil), d.Networks...)
	out.Mounts = append([]string(nil), d.Mounts...)
	out.Env = cloneMap(d.Env)
	out.Labels = cloneMap(d.Labels)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Entry is a catalog record keyed by Name.
//
// SwarmID is a weak reference to the live service last seen under Name. It is
// empty until the service has been deployed and is never followed directly;
// the live side is always looked up by name.
type Entry struct {
	Name        string
	Description string
	Definition  ServiceDefinition
	Status      Status
	SwarmID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type entryJSON struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Definition  ServiceDefinition `json:"definition"`
	Status      Status            `json:"status"`
	SwarmID     *string           `json:"swarm_id"`
	CreatedAt   *time.Time        `json:"created_at"`
	UpdatedAt   *time.Time        `json:"updated_at"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		Name:        e.Name,
		Description: e.Description,
		Definition:  e.Definition,
		Status:      e.Status,
	}
	if e.SwarmID != "" {
		id := e.SwarmID
		out.SwarmID = &id
	}
	if !e.CreatedAt.IsZero() {
		t := e.CreatedAt
		out.CreatedAt = &t
	}
	if !e.UpdatedAt.IsZero() {
		t := e.UpdatedAt
		out.UpdatedAt = &t
	}
	return json.Marshal(out)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	in := entryJSON{Definition: DefaultDefinition()}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Entry{
		Name:        in.Name,
		Description: in.Description,
		Definition:  in.Definition,
		Status:      in.Status,
	}
	if in.SwarmID != nil {
		e.SwarmID = *in.SwarmID
	}
	if in.CreatedAt != nil {
		e.CreatedAt = *in.CreatedAt
	}
	if in.UpdatedAt != nil {
		e.UpdatedAt = *in.UpdatedAt
	}
	return nil
}
