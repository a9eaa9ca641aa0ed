package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	compose "github.com/compose-spec/compose-go/v2/types"
)

const composeSpecFilename = "compose.yaml"

// FromCompose converts every service of a compose document into a catalog
// entry. Entries come back sorted by name; nothing is persisted.
func FromCompose(ctx context.Context, data []byte, projectName string) ([]Entry, error) {
	projectName = strings.TrimSpace(projectName)
	if projectName == "" {
		projectName = "catalog"
	}
	details := compose.ConfigDetails{
		WorkingDir:  ".",
		ConfigFiles: []compose.ConfigFile{{Filename: composeSpecFilename, Content: data}},
	}
	project, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(projectName, true)
		o.SkipConsistencyCheck = true
	})
	if err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, fmt.Errorf("compose file has no services")
	}

	out := make([]Entry, 0, len(project.Services))
	for name, svc := range project.Services {
		def, err := definitionFromCompose(svc)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		out = append(out, Entry{
			Name:        name,
			Description: svc.Labels["description"],
			Definition:  def,
			Status:      StatusRegistered,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func definitionFromCompose(svc compose.ServiceConfig) (ServiceDefinition, error) {
	def := DefaultDefinition()
	def.Image = svc.Image
	if svc.Build != nil {
		def.BuildContext = svc.Build.Context
	}
	if svc.Deploy != nil {
		if svc.Deploy.Replicas != nil {
			def.Replicas = *svc.Deploy.Replicas
		}
		def.Constraints = append(def.Constraints, svc.Deploy.Placement.Constraints...)
	}
	if len(svc.Command) > 0 {
		def.Command = joinCommand(svc.Command)
	}

	for _, p := range svc.Ports {
		spec := fmt.Sprintf("%d", p.Target)
		if p.Published != "" {
			spec = p.Published + ":" + spec
		}
		if p.Protocol != "" && p.Protocol != "tcp" {
			spec += "/" + p.Protocol
		}
		def.Ports = append(def.Ports, spec)
	}

	if len(svc.Environment) > 0 {
		def.Env = make(map[string]string, len(svc.Environment))
		for k, v := range svc.Environment {
			if v == nil {
				continue
			}
			def.Env[k] = *v
		}
	}
	if len(svc.Labels) > 0 {
		def.Labels = make(map[string]string, len(svc.Labels))
		for k, v := range svc.Labels {
			if k == "description" {
				continue
			}
			def.Labels[k] = v
		}
	}

	for network := range svc.Networks {
		if network == "default" {
			continue
		}
		def.Networks = append(def.Networks, network)
	}
	sort.Strings(def.Networks)

	for _, v := range svc.Volumes {
		if v.Type != compose.VolumeTypeBind {
			continue
		}
		m := v.Source + ":" + v.Target
		if v.ReadOnly {
			m += ":ro"
		}
		def.Mounts = append(def.Mounts, m)
	}
	return def, nil
}

// joinCommand renders argv as a single shell-style string that
// shellwords.Parse splits back into the same arguments.
func joinCommand(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\$`") {
			parts[i] = strconv.Quote(arg)
			continue
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}
