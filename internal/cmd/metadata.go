package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/harrison/docrouter/internal/metadata"
	"github.com/harrison/docrouter/internal/models"
	"github.com/spf13/cobra"
)

// NewMetadataCommand creates the 'docrouter metadata' command group
func NewMetadataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage the document type, property and collator path tables",
		Long: `The metadata tables decide how files are routed: which filename codes are
document types, which index properties receive the key and invoice values,
and where each location's unrecognized documents are archived.`,
	}

	cmd.AddCommand(newMetadataImportCommand())
	cmd.AddCommand(newMetadataShowCommand())

	return cmd
}

func newMetadataImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <reference.yaml>",
		Short: "Load reference rows from a YAML file into the metadata tables",
		Long: `Import inserts or replaces the document types, properties and collator
paths listed in a YAML reference file. Rows not named in the file are kept.

Example file:
  document_types:
    - name: SAPXXXDE
      document_type_id: 12
      top_level_folder_id: 3
      key_property_id: 25
      has_key_property: true
      sirm_process: false
  properties:
    - {id: 25, tag: ORDER_NUMBER, data_type: integer}
    - {id: 35, tag: SimonsDocumentName, data_type: string}
    - {id: 40, tag: InvoiceNo, data_type: string}
  collator_paths:
    - {location: "42", path: /archive/unknown/site42}`,
		Args: cobra.ExactArgs(1),
		RunE: runMetadataImport,
	}
}

func runMetadataImport(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve reference file path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("reference file not found: %s", absPath)
	}

	ref, err := metadata.LoadReferenceFile(absPath)
	if err != nil {
		return err
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ImportReference(commandContext(cmd), ref); err != nil {
		return fmt.Errorf("import reference data: %w", err)
	}

	color.New(color.FgGreen).Fprintf(output, "Imported %s\n", filepath.Base(absPath))
	fmt.Fprintf(output, "  Document types: %d\n", len(ref.DocumentTypes))
	fmt.Fprintf(output, "  Properties:     %d\n", len(ref.Properties))
	fmt.Fprintf(output, "  Collator paths: %d\n", len(ref.CollatorPaths))
	return nil
}

func newMetadataShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the metadata tables as the router sees them",
		Args:  cobra.NoArgs,
		RunE:  runMetadataShow,
	}
}

func runMetadataShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	types, err := store.ListDocumentTypes(ctx)
	if err != nil {
		return err
	}
	props, err := store.ListProperties(ctx)
	if err != nil {
		return err
	}
	collators, err := store.ListCollatorPaths(ctx)
	if err != nil {
		return err
	}

	printMetadata(cmd.OutOrStdout(), metadata.NewCache(types, props, collators), types, props, collators)
	return nil
}

// printMetadata formats the reference tables and the property ids the router resolved
func printMetadata(w io.Writer, cache *metadata.Cache, types []models.DocumentType, props []models.Property, collators []models.CollatorPath) {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(w, "\n=== Document Types (%d) ===\n", len(types))
	if len(types) == 0 {
		gray.Fprintf(w, "  (none)\n")
	}
	for _, dt := range types {
		fmt.Fprintf(w, "  %-16s id=%-5d folder=%-4d key_property=%-4d", dt.Name, dt.DocumentTypeID, dt.TopLevelFolderID, dt.KeyPropertyID)
		if dt.WorkflowID > 0 {
			fmt.Fprintf(w, " workflow=%d/%d/%d", dt.WorkflowID, dt.WorkflowQueueID, dt.InitialWorkflowActivityID)
		}
		if dt.SirmProcess() {
			yellow.Fprintf(w, " sirm")
		}
		fmt.Fprintln(w)
	}

	cyan.Fprintf(w, "\n=== Properties (%d) ===\n", len(props))
	if len(props) == 0 {
		gray.Fprintf(w, "  (none)\n")
	}
	for _, p := range props {
		fmt.Fprintf(w, "  %-20s id=%-5d %s\n", p.Tag, p.ID, p.DataType)
	}

	cyan.Fprintf(w, "\n=== Collator Paths (%d) ===\n", len(collators))
	if len(collators) == 0 {
		gray.Fprintf(w, "  (none)\n")
	}
	for _, cp := range collators {
		fmt.Fprintf(w, "  %-8s %s\n", cp.Location, cp.Path)
	}

	cyan.Fprintf(w, "\n=== Resolved Properties ===\n")
	resolved := []struct {
		tag string
		id  int
	}{
		{metadata.TagDocumentTypeOutput, cache.DocumentTypePropertyID},
		{metadata.TagInvoiceNumber, cache.InvoiceNoPropertyID},
		{metadata.TagTripNumber, cache.TripNumberPropertyID},
	}
	for _, r := range resolved {
		if r.id > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", r.tag, r.id)
		} else {
			yellow.Fprintf(w, "  %-20s not defined, property is skipped\n", r.tag)
		}
	}
}

// openStore opens the metadata store named by the configuration
func openStore(cmd *cobra.Command) (*metadata.Store, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	store, err := metadata.NewStore(cfg.Metadata.Driver, cfg.Metadata.DSN)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	return store, nil
}
