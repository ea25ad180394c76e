package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/storage"
)

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("docsearch %s\n", info.Version)
			cmd.Printf("Build Time: %s\n", info.BuildTime)
			cmd.Printf("Build Mode: %s\n", storage.BuildMode)
			cmd.Printf("SQLite Driver: %s\n", storage.DriverName)
			cmd.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}
