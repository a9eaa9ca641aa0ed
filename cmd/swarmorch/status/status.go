package statuscmd

import (
	"fmt"
	"strings"

	"swarmorch/cmd/swarmorch/cmdutil"
	"swarmorch/cmd/swarmorch/ui"
	"swarmorch/internal/cluster"
	"swarmorch/internal/health"

	"github.com/spf13/cobra"
)

// Cmd returns the "swarmorch status" command. endpointFlag and contextFlag
// are pointers to the root persistent flag values.
func Cmd(endpointFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cluster health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			info, err := client.Info(cmd.Context())
			if err != nil {
				return err
			}
			h, err := client.ClusterHealth(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Print(ui.KeyValues("  ",
				ui.KV("Endpoint", client.Endpoint()),
				ui.KV("Version", info.Version),
				ui.KV("Swarm", ui.OrDash(h.SwarmID)),
				ui.KV("Status", ui.Status(h.Status.String())),
				ui.KV("Nodes", ui.Int(h.NodeCount)),
				ui.KV("Services", ui.Int(h.ServiceCount)),
			))
			if len(h.Nodes) > 0 {
				fmt.Println(ui.Table([]string{"HOSTNAME", "ROLE", "STATUS", "AVAILABILITY", "SERVICES"}, nodeRows(h)))
			}
			for _, e := range h.Errors {
				fmt.Println(ui.WarnMsg("%s", e))
			}
			return nil
		},
	}
}

func nodeRows(h health.ClusterHealth) [][]string {
	rows := make([][]string, 0, len(h.Nodes))
	for _, n := range h.Nodes {
		rows = append(rows, []string{
			n.Hostname,
			n.Role.String(),
			ui.Status(n.Status.String()),
			ui.Status(n.Availability.String()),
			placements(n),
		})
	}
	return rows
}

func placements(n cluster.Node) string {
	if n.Services == nil {
		return ui.Muted("?")
	}
	if len(n.Services) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(n.Services))
	for _, s := range n.Services {
		parts = append(parts, fmt.Sprintf("%s×%d", s.Name, s.Replicas))
	}
	return strings.Join(parts, ", ")
}
