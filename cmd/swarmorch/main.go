package main

import (
	"errors"
	"fmt"
	"os"

	contextcmd "swarmorch/cmd/swarmorch/context"
	nodecmd "swarmorch/cmd/swarmorch/node"
	registrycmd "swarmorch/cmd/swarmorch/registry"
	servicecmd "swarmorch/cmd/swarmorch/service"
	statuscmd "swarmorch/cmd/swarmorch/status"
	"swarmorch/cmd/swarmorch/ui"
	"swarmorch/internal/buildinfo"
	"swarmorch/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	var (
		debug         bool
		noInteraction bool
		endpoint      string
		contextName   string
	)
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "swarmorch",
		Short:         "Manage services, nodes and images of a Docker Swarm cluster",
		Version:       buildinfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			ui.ConfigureInteraction(noInteraction)
			return logging.Configure(level, logging.FormatText)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noInteraction, "no-interaction", false, "Never prompt; fail where input is needed")
	root.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Control-plane URL (overrides the context)")
	root.PersistentFlags().StringVar(&contextName, "context", "", "Context name to use")

	root.AddCommand(contextcmd.Cmd())
	root.AddCommand(statuscmd.Cmd(&endpoint, &contextName))
	root.AddCommand(nodecmd.Cmd(&endpoint, &contextName))
	root.AddCommand(servicecmd.Cmd(&endpoint, &contextName))
	root.AddCommand(registrycmd.Cmd(&endpoint, &contextName))

	if err := root.Execute(); err != nil {
		if errors.Is(err, ui.ErrCancelled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
