package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/contact-scheduler/internal/config"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
)

// cli carries state shared by subcommands after the config is loaded.
type cli struct {
	configPath string
	cfg        *config.Config
	log        logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "schedulerd",
		Short:         "Ground station contact scheduler",
		Long:          "schedulerd books contact and RF time on ground stations with a greedy earliest-deadline allocator.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			c.log = logging.New(cfg.Logging)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("SCHED_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newSeedCmd(c),
		newScheduleCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
