package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/database"
)

func newMigrateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := load()

			// NewDatabase migrates the application tables
			db, err := database.NewDatabase(cfg.Database.URL, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			sqlDB, err := db.SQLDB()
			if err != nil {
				return err
			}
			if _, err := auth.NewSessionStore(sqlDB, db.Driver); err != nil {
				return fmt.Errorf("failed to create sessions table: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
			return nil
		},
	}
}
