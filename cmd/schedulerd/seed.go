package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
	"github.com/signalsfoundry/contact-scheduler/kb"
)

func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo stations and satellites",
		Long:  "Insert the demo ground stations and satellites. Entries that already exist are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Connect(c.cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			added, err := seed(cmd.Context(), st)
			if err != nil {
				return err
			}
			c.log.Info(cmd.Context(), "catalog seeded", logging.Int("added", added))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d catalog entries\n", added)
			return nil
		},
	}
}

func seed(ctx context.Context, st *store.Store) (int, error) {
	added := 0
	for _, gs := range kb.DemoStations() {
		switch err := st.CreateStation(ctx, gs); {
		case err == nil:
			added++
		case errors.Is(err, store.ErrDuplicate):
		default:
			return added, err
		}
	}
	for _, sat := range kb.DemoSatellites() {
		switch err := st.CreateSatellite(ctx, sat); {
		case err == nil:
			added++
		case errors.Is(err, store.ErrDuplicate):
		default:
			return added, err
		}
	}
	return added, nil
}
