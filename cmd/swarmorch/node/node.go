package nodecmd

import (
	"fmt"

	"swarmorch/cmd/swarmorch/cmdutil"
	"swarmorch/cmd/swarmorch/ui"
	"swarmorch/internal/cluster"
	"swarmorch/internal/nodes"

	"github.com/spf13/cobra"
)

// Cmd returns the "swarmorch node" command group.
func Cmd(endpointFlag, contextFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "node",
		Aliases: []string{"nodes"},
		Short:   "Inspect and drain swarm nodes",
	}
	cmd.AddCommand(listCmd(endpointFlag, contextFlag))
	cmd.AddCommand(inspectCmd(endpointFlag, contextFlag))
	cmd.AddCommand(availabilityCmd(endpointFlag, contextFlag, "drain", "Stop scheduling tasks on a node and move its tasks away"))
	cmd.AddCommand(availabilityCmd(endpointFlag, contextFlag, "activate", "Make a drained node schedulable again"))
	return cmd
}

func listCmd(endpointFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List nodes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			list, err := client.ListNodes(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println(ui.InfoMsg("No nodes."))
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, n := range list {
				rows = append(rows, []string{
					n.ID, n.Hostname, n.Role.String(),
					ui.Status(n.Status.String()), ui.Status(n.Availability.String()),
					ui.OrDash(n.Addr), ui.OrDash(n.EngineVersion),
				})
			}
			fmt.Println(ui.Table([]string{"ID", "HOSTNAME", "ROLE", "STATUS", "AVAILABILITY", "ADDRESS", "ENGINE"}, rows))
			return nil
		},
	}
}

func inspectCmd(endpointFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <id|hostname>",
		Short: "Show one node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			n, err := client.GetNode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Print(describe(n))
			return nil
		},
	}
}

func describe(n cluster.Node) string {
	return ui.KeyValues("  ",
		ui.KV("ID", n.ID),
		ui.KV("Hostname", n.Hostname),
		ui.KV("Role", n.Role.String()),
		ui.KV("Status", ui.Status(n.Status.String())),
		ui.KV("Availability", ui.Status(n.Availability.String())),
		ui.KV("Address", ui.OrDash(n.Addr)),
		ui.KV("Platform", n.PlatformOS+"/"+n.PlatformArch),
		ui.KV("Engine", ui.OrDash(n.EngineVersion)),
		ui.KV("CPUs", fmt.Sprintf("%g", n.Resources.CPUs)),
		ui.KV("Memory", ui.MemoryMB(n.Resources.MemoryMB)),
		ui.KV("GPUs", ui.Int(int(n.Resources.GPUs))),
	)
}

func availabilityCmd(endpointFlag, contextFlag *string, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id|hostname>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			var res nodes.Result
			if verb == "drain" {
				res, err = client.DrainNode(cmd.Context(), args[0])
			} else {
				res, err = client.ActivateNode(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if !res.Changed {
				fmt.Println(ui.InfoMsg("Node %s is already %s.", ui.Bold(res.Hostname), res.Availability))
				return nil
			}
			fmt.Println(ui.SuccessMsg("Node %s is now %s.", ui.Bold(res.Hostname), ui.Status(res.Availability.String())))
			return nil
		},
	}
}
