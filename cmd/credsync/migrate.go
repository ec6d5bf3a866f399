package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/credsync/internal/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credentialing schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return database.Migrate(a.cfg.Database.URL)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return database.MigrateDown(a.cfg.Database.URL, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	cmd.AddCommand(up, down)
	return cmd
}
