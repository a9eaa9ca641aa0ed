package catalog

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"swarmorch/internal/errdefs"

	"github.com/distribution/reference"
	"github.com/docker/go-connections/nat"
)

// Swarm service names share the DNS-label rules the engine enforces.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,62}$`)

// PortBinding is a parsed "published:target[/proto]" port spec.
type PortBinding struct {
	Published uint32
	Target    uint32
	Protocol  string
}

// MountSpec is a parsed "source:target[:ro|rw]" bind mount.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ValidateName checks that name is usable as a swarm service name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errdefs.Invalid("name", "is required")
	}
	if !serviceNamePattern.MatchString(name) {
		return errdefs.Invalid("name", fmt.Sprintf("%q must match %s", name, serviceNamePattern))
	}
	return nil
}

// ValidateReplicas checks the replica bounds shared by definitions and scale requests.
func ValidateReplicas(replicas int) error {
	if replicas < 0 {
		return errdefs.Invalid("replicas", "must be >= 0")
	}
	if replicas > MaxReplicas {
		return errdefs.Invalid("replicas", fmt.Sprintf("must be <= %d", MaxReplicas))
	}
	return nil
}

// Validate checks every field of the definition.
func (d ServiceDefinition) Validate() error {
	if strings.TrimSpace(d.Image) == "" {
		return errdefs.Invalid("image", "is required")
	}
	if _, err := reference.ParseNormalizedNamed(d.Image); err != nil {
		return errdefs.Invalid("image", err.Error())
	}
	if err := ValidateReplicas(d.Replicas); err != nil {
		return err
	}
	if _, err := d.PortBindings(); err != nil {
		return err
	}
	if _, err := d.MountSpecs(); err != nil {
		return err
	}
	for k := range d.Env {
		if k == "" || strings.Contains(k, "=") {
			return errdefs.Invalid("env", fmt.Sprintf("invalid variable name %q", k))
		}
	}
	for _, c := range d.Constraints {
		if !strings.Contains(c, "==") && !strings.Contains(c, "!=") {
			return errdefs.Invalid("constraints", fmt.Sprintf("%q must use == or !=", c))
		}
	}
	return nil
}

// PortBindings parses Ports. Ranges expand to one binding per port.
func (d ServiceDefinition) PortBindings() ([]PortBinding, error) {
	var out []PortBinding
	for _, spec := range d.Ports {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, errdefs.Invalid("ports", err.Error())
		}
		for _, m := range mappings {
			target := m.Port.Int()
			if target <= 0 {
				return nil, errdefs.Invalid("ports", fmt.Sprintf("%q has no target port", spec))
			}
			var published uint64
			if m.Binding.HostPort != "" {
				published, err = strconv.ParseUint(m.Binding.HostPort, 10, 16)
				if err != nil {
					return nil, errdefs.Invalid("ports", fmt.Sprintf("%q: published port: %v", spec, err))
				}
			}
			out = append(out, PortBinding{
				Published: uint32(published),
				Target:    uint32(target),
				Protocol:  m.Port.Proto(),
			})
		}
	}
	return out, nil
}

// MountSpecs parses Mounts.
func (d ServiceDefinition) MountSpecs() ([]MountSpec, error) {
	out := make([]MountSpec, 0, len(d.Mounts))
	for _, raw := range d.Mounts {
		parts := strings.Split(raw, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, errdefs.Invalid("mounts", fmt.Sprintf("%q must be source:target[:ro|rw]", raw))
		}
		if !path.IsAbs(parts[1]) {
			return nil, errdefs.Invalid("mounts", fmt.Sprintf("%q target must be absolute", raw))
		}
		m := MountSpec{Source: parts[0], Target: parts[1]}
		if len(parts) == 3 {
			switch parts[2] {
			case "ro":
				m.ReadOnly = true
			case "rw":
			default:
				return nil, errdefs.Invalid("mounts", fmt.Sprintf("%q has unknown mode %q", raw, parts[2]))
			}
		}
		out = append(out, m)
	}
	return out, nil
}
