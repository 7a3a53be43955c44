// main.go
// In main.go we wire the command tree together: load the config file, let the
// global flags override it, set up logrus, and dispatch to serve, join or
// discover. Each subcommand builds its server or client from the resolved
// config, so flags, YAML and defaults all meet in one place.

package main

import (
	"fmt"
	"os"

	"lanchat/internal/config"
	"lanchat/internal/log"

	"github.com/spf13/cobra"
)

// globals holds the persistent flags and the config they resolve to.
type globals struct {
	configPath    string
	logLevel      string
	discoveryPort int
	sessionPort   int

	cfg *config.Config
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "lanchat",
		Short: "Discover chat servers by name on the local network and talk to them",
		Long: `lanchat finds a server by its logical name with a UDP broadcast and then
exchanges newline-delimited text over a TCP session.

  lanchat serve --name office
  lanchat join --name alice --server office
  lanchat discover office`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.resolve(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigFile+")")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.IntVar(&g.discoveryPort, "discovery-port", 0, "UDP discovery port")
	flags.IntVar(&g.sessionPort, "session-port", 0, "TCP session port")

	rootCmd.AddCommand(
		serveCmd(g),
		joinCmd(g),
		discoverCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorLabel("Error:"), err)
		os.Exit(1)
	}
}

// resolve loads the config file and applies explicitly set flags on top.
func (g *globals) resolve(cmd *cobra.Command) error {
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("discovery-port") {
		cfg.Network.DiscoveryPort = g.discoveryPort
	}
	if flags.Changed("session-port") {
		cfg.Network.SessionPort = g.sessionPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.SetLogger(cfg.LogLevel)
	g.cfg = cfg
	return nil
}
