package contextcmd

import (
	"fmt"

	"swarmorch/cmd/swarmorch/ui"
	"swarmorch/config"
	"swarmorch/pkg/sdk/client"

	"github.com/spf13/cobra"
)

func addCmd() *cobra.Command {
	var endpoint, description string
	var use bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]

			// Normalizes the endpoint the way every later connection will.
			c, err := client.New(endpoint)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Set(name, config.Context{Endpoint: c.Endpoint(), Description: description}); err != nil {
				return err
			}
			if use || cfg.CurrentContext == "" {
				cfg.CurrentContext = name
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("Context %s saved.", ui.Bold(name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Control-plane API endpoint (e.g. http://manager-1:8080)")
	cmd.Flags().StringVar(&description, "description", "", "Free-text description")
	cmd.Flags().BoolVar(&use, "use", false, "Make this the current context")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}
