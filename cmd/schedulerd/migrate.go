package main

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Connect(c.cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			c.log.Info(cmd.Context(), "schema migrated", logging.String("backend", string(c.cfg.Database.Backend)))
			return nil
		},
	}
}
