package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for docrouter
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docrouter",
		Short: "Route scanned documents into the index engine",
		Long: `Docrouter watches a folder of scanned *.tif images, works out each
document's type from its filename and stores recognized documents in the
index engine with their key properties. Documents it cannot index are
archived into dated unknown folders for manual handling.

Configuration is loaded from $DOCROUTER_HOME/config.yaml (default
.docrouter/config.yaml). CLI flags override configuration file settings.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: $DOCROUTER_HOME/config.yaml)")
	cmd.PersistentFlags().String("env-file", ".env", "File with index engine credentials, loaded if present")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().String("log-dir", "", "Directory for run log files")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMetadataCommand())
	cmd.AddCommand(NewAuditCommand())
	cmd.AddCommand(NewValidateCommand())

	return cmd
}
