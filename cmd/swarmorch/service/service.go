package servicecmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"swarmorch/cmd/swarmorch/cmdutil"
	"swarmorch/cmd/swarmorch/ui"
	"swarmorch/internal/catalog"
	"swarmorch/internal/reconcile"
	"swarmorch/pkg/sdk/types"

	"github.com/spf13/cobra"
)

type connectFlags struct {
	endpoint *string
	context  *string
}

// Cmd returns the "swarmorch service" command group.
func Cmd(endpointFlag, contextFlag *string) *cobra.Command {
	f := connectFlags{endpoint: endpointFlag, context: contextFlag}
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"services", "svc"},
		Short:   "Manage catalog services and their live counterparts",
	}
	cmd.AddCommand(
		listCmd(f),
		inspectCmd(f),
		registerCmd(f),
		updateCmd(f),
		removeCmd(f),
		importCmd(f),
		reconcileCmd(f),
		deployCmd(f),
		stopCmd(f),
		scaleCmd(f),
		logsCmd(f),
	)
	return cmd
}

func listCmd(f connectFlags) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List catalog services with their reconciled status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			if live {
				services, err := client.ListLiveServices(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(services))
				for _, s := range services {
					rows = append(rows, []string{
						s.Name, s.Image,
						ui.Replicas(s.RunningReplicas, s.DesiredReplicas),
						ui.OrDash(strings.Join(s.Ports, ", ")),
						ui.Ago(s.CreatedAt),
					})
				}
				fmt.Println(ui.Table([]string{"NAME", "IMAGE", "REPLICAS", "PORTS", "CREATED"}, rows))
				return nil
			}

			services, err := client.ListServices(cmd.Context())
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Println(ui.InfoMsg("No services in the catalog."))
				return nil
			}
			rows := make([][]string, 0, len(services))
			for _, s := range services {
				rows = append(rows, []string{s.Name, s.Definition.Image, ui.Status(s.Status.String()), replicas(s), ui.OrDash(s.Description)})
			}
			fmt.Println(ui.Table([]string{"NAME", "IMAGE", "STATUS", "REPLICAS", "DESCRIPTION"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "List the engine's services instead of the catalog")
	return cmd
}

func replicas(s reconcile.ResolvedService) string {
	if s.Live == nil {
		return ui.Muted(fmt.Sprintf("-/%d", s.Definition.Replicas))
	}
	return ui.Replicas(s.Live.RunningReplicas, s.Live.DesiredReplicas)
}

func inspectCmd(f connectFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show one catalog service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			s, err := client.GetService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Print(ui.KeyValues("  ",
				ui.KV("Name", s.Name),
				ui.KV("Description", ui.OrDash(s.Description)),
				ui.KV("Status", ui.Status(s.Status.String())),
				ui.KV("Swarm ID", ui.OrDash(s.SwarmID)),
				ui.KV("Image", s.Definition.Image),
				ui.KV("Replicas", replicas(s)),
				ui.KV("Ports", ui.OrDash(strings.Join(s.Definition.Ports, ", "))),
				ui.KV("Networks", ui.OrDash(strings.Join(s.Definition.Networks, ", "))),
				ui.KV("Constraints", ui.OrDash(strings.Join(s.Definition.Constraints, ", "))),
				ui.KV("Updated", ui.Ago(s.UpdatedAt)),
			))
			return nil
		},
	}
}

func registerCmd(f connectFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "register -f <definition.yaml>",
		Short: "Add a service definition to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, err := readDefinition(file)
			if err != nil {
				return err
			}
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			created, err := client.RegisterService(cmd.Context(), types.ServiceRequest{
				Name:        entry.Name,
				Description: entry.Description,
				Definition:  entry.Definition,
			})
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Service %s registered.", ui.Bold(created.Name)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Definition file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func updateCmd(f connectFlags) *cobra.Command {
	var file, description string
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Replace the definition or description of a catalog service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch types.ServicePatch
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if file != "" {
				entry, err := readDefinition(file)
				if err != nil {
					return err
				}
				patch.Definition = &entry.Definition
			}
			if patch.Description == nil && patch.Definition == nil {
				return fmt.Errorf("nothing to update: pass --file or --description")
			}

			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			if _, err := client.UpdateService(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Service %s updated. Run deploy to apply it.", ui.Bold(args[0])))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Definition file (YAML)")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	return cmd
}

func removeCmd(f connectFlags) *cobra.Command {
	var yes, purge bool
	cmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Remove a service from the catalog",
		Long:    "Remove a service from the catalog. The live service keeps running unless --purge is given.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := fmt.Sprintf("Remove %s from the catalog?", ui.Bold(args[0]))
			if purge {
				question = fmt.Sprintf("Remove %s and its live service?", ui.Bold(args[0]))
			}
			if !yes {
				ok, err := ui.Confirm(question, "use --yes to skip")
				if err != nil || !ok {
					return err
				}
			}
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			if purge {
				res, err := client.PurgeService(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !res.LiveRemoved {
					fmt.Println(ui.InfoMsg("Service %s had no live service.", ui.Bold(res.Name)))
				}
				fmt.Println(ui.SuccessMsg("Service %s purged.", ui.Bold(res.Name)))
				return nil
			}
			if err := client.DeleteService(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Service %s removed from the catalog.", ui.Bold(args[0])))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&purge, "purge", false, "Also remove the live service")
	return cmd
}

func importCmd(f connectFlags) *cobra.Command {
	var file, project string
	cmd := &cobra.Command{
		Use:   "import -f <compose.yaml>",
		Short: "Register every service of a compose file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read compose file: %w", err)
			}
			if project == "" {
				project = filepath.Base(filepath.Dir(mustAbs(file)))
			}
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			results, err := client.ImportCompose(cmd.Context(), data, project)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, string(r.Outcome), ui.OrDash(r.Error)})
			}
			fmt.Println(ui.Table([]string{"NAME", "OUTCOME", "ERROR"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "compose.yaml", "Compose file")
	cmd.Flags().StringVar(&project, "project", "", "Compose project name (defaults to the file's directory)")
	return cmd
}

func reconcileCmd(f connectFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			res, err := client.TriggerReconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Checked %d services, updated %d.", res.Checked, res.Updated))
			return nil
		},
	}
}

func deployCmd(f connectFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <name>",
		Short: "Create or update the live service from its catalog definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			res, err := client.DeployService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Service %s %s (%s).", ui.Bold(res.Name), res.Action, ui.Muted(res.SwarmID)))
			return nil
		},
	}
}

func stopCmd(f connectFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Scale the live service to zero replicas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			res, err := client.StopService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Removed {
				fmt.Println(ui.WarnMsg("Service %s was already gone; cleared its reference.", ui.Bold(res.Name)))
				return nil
			}
			fmt.Println(ui.SuccessMsg("Service %s stopped.", ui.Bold(res.Name)))
			return nil
		},
	}
}

func scaleCmd(f connectFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scale <name> <replicas>",
		Short: "Set the desired replica count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("replicas %q is not a number", args[1])
			}
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			res, err := client.ScaleService(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			if !res.Live {
				fmt.Println(ui.InfoMsg("Service %s is not deployed; stored %d replicas.", ui.Bold(res.Name), res.Replicas))
				return nil
			}
			fmt.Println(ui.SuccessMsg("Service %s scaled to %d.", ui.Bold(res.Name), res.Replicas))
			return nil
		},
	}
}

func logsCmd(f connectFlags) *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Print the last lines of a service's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*f.endpoint, *f.context)
			if err != nil {
				return err
			}
			logs, err := client.ServiceLogs(cmd.Context(), args[0], tail)
			if err != nil {
				return err
			}
			fmt.Println(logs.Logs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", reconcile.DefaultLogTail, "Number of lines")
	return cmd
}

func readDefinition(path string) (catalog.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("read definition: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return catalog.DecodeDefinition(data, stem)
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
