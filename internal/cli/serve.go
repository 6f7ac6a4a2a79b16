package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/bookshelf/internal/entrypoint"
)

func newServeCommand(version string, load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := load()
			return entrypoint.Run(cfg, version, logger)
		},
	}
}
