package cluster

import "fmt"

// Role is a node's swarm role.
type Role uint8

const (
	RoleWorker Role = iota
	RoleManager
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleManager:
		return "manager"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "worker":
		return RoleWorker, nil
	case "manager":
		return RoleManager, nil
	default:
		return 0, fmt.Errorf("invalid node role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// NodeState is the engine-reported reachability of a node.
type NodeState uint8

const (
	NodeUnknown NodeState = iota
	NodeReady
	NodeDown
	NodeDisconnected
)

func (s NodeState) String() string {
	switch s {
	case NodeUnknown:
		return "unknown"
	case NodeReady:
		return "ready"
	case NodeDown:
		return "down"
	case NodeDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("node_state(%d)", uint8(s))
	}
}

func ParseNodeState(s string) (NodeState, error) {
	switch s {
	case "unknown":
		return NodeUnknown, nil
	case "ready":
		return NodeReady, nil
	case "down":
		return NodeDown, nil
	case "disconnected":
		return NodeDisconnected, nil
	default:
		return 0, fmt.Errorf("invalid node state %q", s)
	}
}

func (s NodeState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *NodeState) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Availability is the scheduling availability of a node.
//
// The controller only moves nodes between active and drain. Pause is a third
// stable state that can only be entered or left from outside.
type Availability uint8

const (
	AvailabilityActive Availability = iota
	AvailabilityPause
	AvailabilityDrain
)

func (a Availability) String() string {
	switch a {
	case AvailabilityActive:
		return "active"
	case AvailabilityPause:
		return "pause"
	case AvailabilityDrain:
		return "drain"
	default:
		return fmt.Sprintf("availability(%d)", uint8(a))
	}
}

func ParseAvailability(s string) (Availability, error) {
	switch s {
	case "active":
		return AvailabilityActive, nil
	case "pause":
		return AvailabilityPause, nil
	case "drain":
		return AvailabilityDrain, nil
	default:
		return 0, fmt.Errorf("invalid node availability %q", s)
	}
}

func (a Availability) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Availability) UnmarshalText(text []byte) error {
	parsed, err := ParseAvailability(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Resources is a node's advertised capacity.
type Resources struct {
	CPUs     float64 `json:"cpus"`
	MemoryMB float64 `json:"memory_mb"`
	GPUs     int64   `json:"gpus"`
}

// NodeService is a live service with replicas scheduled on a specific node.
type NodeService struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	Replicas int    `json:"replicas_on_node"`
}

// Node is a swarm member as reported by the engine, plus the services placed on it.
type Node struct {
	ID            string            `json:"id"`
	Hostname      string            `json:"hostname"`
	Role          Role              `json:"role"`
	Status        NodeState         `json:"status"`
	Availability  Availability      `json:"availability"`
	Addr          string            `json:"addr"`
	PlatformOS    string            `json:"platform_os"`
	PlatformArch  string            `json:"platform_arch"`
	EngineVersion string            `json:"engine_version"`
	Labels        map[string]string `json:"labels"`
	Resources     Resources         `json:"resources"`
	// Services is nil when placement was not computed and empty when the node
	// runs nothing.
	Services []NodeService `json:"services"`
}

// IsManager reports whether the node participates in the raft quorum.
func (n Node) IsManager() bool { return n.Role == RoleManager }
