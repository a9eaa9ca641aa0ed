package docker

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/swarm"
	"github.com/mattn/go-shellwords"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
)

// LabelManaged marks services created through the control plane.
const LabelManaged = "swarmorch.managed"

func nodeFromSwarm(n swarm.Node) cluster.Node {
	out := cluster.Node{
		ID:            n.ID,
		Hostname:      n.Description.Hostname,
		Role:          cluster.RoleWorker,
		Status:        nodeState(n.Status.State),
		Availability:  availability(n.Spec.Availability),
		Addr:          n.Status.Addr,
		PlatformOS:    n.Description.Platform.OS,
		PlatformArch:  n.Description.Platform.Architecture,
		EngineVersion: n.Description.Engine.EngineVersion,
		Labels:        n.Spec.Labels,
		Resources: cluster.Resources{
			CPUs:     float64(n.Description.Resources.NanoCPUs) / 1e9,
			MemoryMB: float64(n.Description.Resources.MemoryBytes) / (1 << 20),
			GPUs:     gpuCount(n.Description.Resources.GenericResources),
		},
	}
	if n.Spec.Role == swarm.NodeRoleManager {
		out.Role = cluster.RoleManager
	}
	if out.Labels == nil {
		out.Labels = map[string]string{}
	}
	return out
}

func nodeState(s swarm.NodeState) cluster.NodeState {
	switch s {
	case swarm.NodeStateReady:
		return cluster.NodeReady
	case swarm.NodeStateDown:
		return cluster.NodeDown
	case swarm.NodeStateDisconnected:
		return cluster.NodeDisconnected
	default:
		return cluster.NodeUnknown
	}
}

func availability(a swarm.NodeAvailability) cluster.Availability {
	switch a {
	case swarm.NodeAvailabilityDrain:
		return cluster.AvailabilityDrain
	case swarm.NodeAvailabilityPause:
		return cluster.AvailabilityPause
	default:
		return cluster.AvailabilityActive
	}
}

func gpuCount(resources []swarm.GenericResource) int64 {
	var n int64
	for _, r := range resources {
		switch {
		case r.DiscreteResourceSpec != nil && isGPU(r.DiscreteResourceSpec.Kind):
			n += r.DiscreteResourceSpec.Value
		case r.NamedResourceSpec != nil && isGPU(r.NamedResourceSpec.Kind):
			n++
		}
	}
	return n
}

func isGPU(kind string) bool {
	return strings.Contains(strings.ToLower(kind), "gpu")
}

func liveFromSwarm(s swarm.Service) cluster.LiveService {
	out := cluster.LiveService{
		ID:        s.ID,
		Name:      s.Spec.Name,
		Ports:     []string{},
		CreatedAt: s.CreatedAt,
	}
	if cs := s.Spec.TaskTemplate.ContainerSpec; cs != nil {
		out.Image = familiarImage(cs.Image)
	}
	if r := s.Spec.Mode.Replicated; r != nil && r.Replicas != nil {
		out.DesiredReplicas = int(*r.Replicas)
	}
	if st := s.ServiceStatus; st != nil {
		if s.Spec.Mode.Replicated == nil {
			out.DesiredReplicas = int(st.DesiredTasks)
		}
		out.RunningReplicas = int(st.RunningTasks)
		out.CompletedReplicas = int(st.CompletedTasks)
	}

	ports := s.Endpoint.Ports
	if len(ports) == 0 && s.Spec.EndpointSpec != nil {
		ports = s.Spec.EndpointSpec.Ports
	}
	for _, p := range ports {
		out.Ports = append(out.Ports, formatPort(p))
	}
	return out
}

// familiarImage strips the digest the engine pins onto images at create time.
func familiarImage(image string) string {
	name, _, _ := strings.Cut(image, "@")
	return name
}

func formatPort(p swarm.PortConfig) string {
	proto := string(p.Protocol)
	if proto == "" {
		proto = string(swarm.PortConfigProtocolTCP)
	}
	if p.PublishedPort == 0 {
		return fmt.Sprintf("%d/%s", p.TargetPort, proto)
	}
	return fmt.Sprintf("%d:%d/%s", p.PublishedPort, p.TargetPort, proto)
}

// serviceSpec translates a stored definition into a replicated swarm service.
func serviceSpec(name string, def catalog.ServiceDefinition) (swarm.ServiceSpec, error) {
	bindings, err := def.PortBindings()
	if err != nil {
		return swarm.ServiceSpec{}, err
	}
	mounts, err := def.MountSpecs()
	if err != nil {
		return swarm.ServiceSpec{}, err
	}
	var args []string
	if strings.TrimSpace(def.Command) != "" {
		args, err = shellwords.Parse(def.Command)
		if err != nil {
			return swarm.ServiceSpec{}, errdefs.Invalid("command", err.Error())
		}
	}

	labels := make(map[string]string, len(def.Labels)+1)
	for k, v := range def.Labels {
		labels[k] = v
	}
	labels[LabelManaged] = "true"

	replicas := uint64(def.Replicas)
	spec := swarm.ServiceSpec{
		Annotations: swarm.Annotations{Name: name, Labels: labels},
		TaskTemplate: swarm.TaskSpec{
			ContainerSpec: &swarm.ContainerSpec{
				Image:  def.Image,
				Args:   args,
				Env:    envList(def.Env),
				Mounts: swarmMounts(mounts),
			},
		},
		Mode: swarm.ServiceMode{Replicated: &swarm.ReplicatedService{Replicas: &replicas}},
	}
	if len(def.Constraints) > 0 {
		spec.TaskTemplate.Placement = &swarm.Placement{Constraints: slices.Clone(def.Constraints)}
	}
	for _, network := range def.Networks {
		spec.TaskTemplate.Networks = append(spec.TaskTemplate.Networks, swarm.NetworkAttachmentConfig{Target: network})
	}
	if len(bindings) > 0 {
		spec.EndpointSpec = &swarm.EndpointSpec{Mode: swarm.ResolutionModeVIP}
		for _, b := range bindings {
			spec.EndpointSpec.Ports = append(spec.EndpointSpec.Ports, swarm.PortConfig{
				Protocol:      swarm.PortConfigProtocol(b.Protocol),
				TargetPort:    b.Target,
				PublishedPort: b.Published,
				PublishMode:   swarm.PortConfigPublishModeIngress,
			})
		}
	}
	return spec, nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

// swarmMounts treats absolute sources as bind mounts and anything else as a
// named volume.
func swarmMounts(specs []catalog.MountSpec) []mount.Mount {
	var out []mount.Mount
	for _, m := range specs {
		typ := mount.TypeVolume
		if path.IsAbs(m.Source) {
			typ = mount.TypeBind
		}
		out = append(out, mount.Mount{Type: typ, Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}
	return out
}
