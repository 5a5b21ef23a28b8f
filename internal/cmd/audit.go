package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/docrouter/internal/metadata"
	"github.com/spf13/cobra"
)

// NewAuditCommand creates the 'docrouter audit' command
func NewAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List where recently processed files were sent",
		Long: `Audit prints the most recent file destination records. A numeric
destination is the index engine document id; a path is the unknown folder
the file was archived into.`,
		Args: cobra.NoArgs,
		RunE: runAudit,
	}

	cmd.Flags().Int("limit", 50, "Maximum number of records to show")
	cmd.Flags().String("run", "", "Only show records from this run id")

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	runID, _ := cmd.Flags().GetString("run")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListDestinations(commandContext(cmd), limit, runID)
	if err != nil {
		return err
	}

	printDestinations(cmd.OutOrStdout(), records)
	return nil
}

// printDestinations renders audit rows, newest first
func printDestinations(w io.Writer, records []metadata.DestinationRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No file destinations recorded")
		return
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "\n=== File Destinations (%d) ===\n\n", len(records))
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-40s ", r.UpdatedAt.Local().Format(time.DateTime), filepath.Base(r.FileName))
		if isDocumentID(r.Destination) {
			green.Fprintf(w, "document %s", r.Destination)
		} else {
			yellow.Fprintf(w, "archived %s", r.Destination)
		}
		if r.RunID != "" {
			gray.Fprintf(w, "  run %s", shortRunID(r.RunID))
		}
		fmt.Fprintln(w)
	}
}

func isDocumentID(destination string) bool {
	if destination == "" {
		return false
	}
	return strings.Trim(destination, "0123456789") == ""
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
