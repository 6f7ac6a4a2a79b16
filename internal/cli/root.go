// Package cli defines the bookshelf command line.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/logging"
)

// NewRootCommand builds the command tree. Running the binary without a
// subcommand starts the server.
func NewRootCommand(version string) *cobra.Command {
	var databaseURL string

	loadConfig := func() (*config.Config, *logrus.Logger) {
		cfg := config.NewConfig()
		if databaseURL != "" {
			cfg.Database.URL = databaseURL
		}
		return cfg, logging.New(cfg.Log)
	}

	serve := newServeCommand(version, loadConfig)

	root := &cobra.Command{
		Use:           "bookshelf",
		Short:         "Track the books you are reading",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database", "", "SQLite path or postgres:// URL (overrides DATABASE_URL)")

	root.AddCommand(
		serve,
		newMigrateCommand(loadConfig),
		newCreateAccountCommand(loadConfig),
	)
	return root
}

type configLoader func() (*config.Config, *logrus.Logger)
