package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"swarmorch/config"
	"swarmorch/internal/buildinfo"
	"swarmorch/internal/daemon"
	"swarmorch/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		overrides  flagOverrides
	)

	cmd := &cobra.Command{
		Use:          "swarmorchd",
		Short:        "Swarm orchestrator control plane",
		Version:      buildinfo.String(),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return err
			}
			overrides.apply(cmd, &cfg)
			if debug {
				cfg.LogLevel = logging.LevelDebug
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("SWARMORCH_CONFIG_FILE"), "Config file (.yaml or .toml)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	overrides.register(cmd)
	return cmd
}

// flagOverrides are applied over the file and environment, but only for
// flags the user actually passed.
type flagOverrides struct {
	listen      string
	grpcAddr    string
	dockerHost  string
	registryURL string
	database    string
	definitions string
}

func (o *flagOverrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.listen, "listen", "", "HTTP listen address (host:port or unix:///path)")
	cmd.Flags().StringVar(&o.grpcAddr, "grpc-addr", "", "gRPC health listen address")
	cmd.Flags().StringVar(&o.dockerHost, "docker-host", "", "Docker engine host")
	cmd.Flags().StringVar(&o.registryURL, "registry-url", "", "Image registry base URL")
	cmd.Flags().StringVar(&o.database, "database", "", "Catalog database path")
	cmd.Flags().StringVar(&o.definitions, "definitions", "", "Directory of service definitions seeded at startup")
}

func (o *flagOverrides) apply(cmd *cobra.Command, cfg *config.Server) {
	set := func(flag string, dst *string, v string) {
		if cmd.Flags().Changed(flag) {
			*dst = v
		}
	}
	set("listen", &cfg.Listen, o.listen)
	set("grpc-addr", &cfg.GRPCAddr, o.grpcAddr)
	set("docker-host", &cfg.DockerHost, o.dockerHost)
	set("registry-url", &cfg.RegistryURL, o.registryURL)
	set("database", &cfg.DatabasePath, o.database)
	set("definitions", &cfg.DefinitionsDir, o.definitions)
}
