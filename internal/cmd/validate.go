package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/harrison/docrouter/internal/config"
	"github.com/harrison/docrouter/internal/indexing"
	"github.com/harrison/docrouter/internal/metadata"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the metadata tables",
		Long: `Validate loads the configuration, opens the metadata store and loads the
reference tables exactly as a run would, then reports what it found:
  - The effective configuration values
  - Whether the watch folder, validation folder and unknown root exist
  - How many document types, properties and collator paths were loaded
  - With --check-engine, whether a session can be opened on the index engine

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}

	cmd.Flags().String("watch-folder", "", "Folder to scan for *.tif files (overrides config)")
	cmd.Flags().Bool("check-engine", false, "Log into the index engine and out again")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	store, err := metadata.NewStore(cfg.Metadata.Driver, cfg.Metadata.DSN)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer store.Close()

	ctx := commandContext(cmd)
	cache, err := metadata.Load(ctx, store)
	if err != nil {
		return err
	}
	version, err := store.GetLatestVersion()
	if err != nil {
		return err
	}

	printValidation(output, cfg, cache)
	if version > 0 {
		fmt.Fprintf(output, "  Schema version: %d\n", version)
	}

	if checkEngine, _ := cmd.Flags().GetBool("check-engine"); checkEngine {
		return checkIndexEngine(cmd, cfg, output)
	}
	return nil
}

// checkIndexEngine opens and closes a session with the configured credentials
func checkIndexEngine(cmd *cobra.Command, cfg *config.Config, w io.Writer) error {
	if cfg.Indexing.Endpoint == "" {
		return fmt.Errorf("indexing.endpoint is not configured")
	}
	envFile, _ := cmd.Flags().GetString("env-file")
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		return err
	}
	client := indexing.NewHTTPClient(indexing.ClientConfig{
		Endpoint: cfg.Indexing.Endpoint,
		Database: cfg.Indexing.Database,
		Server:   cfg.Indexing.Server,
		User:     creds.User,
		Password: creds.Password,
		Timeout:  cfg.Indexing.Timeout,
	})

	ctx := commandContext(cmd)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("index engine login failed: %w", err)
	}
	if !client.Connected() {
		return fmt.Errorf("index engine returned no session")
	}
	color.New(color.FgGreen).Fprintf(w, "Index engine OK: session opened on %s\n", cfg.Indexing.Endpoint)
	return client.Disconnect(ctx)
}

func printValidation(w io.Writer, cfg *config.Config, cache *metadata.Cache) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Fprintf(w, "Configuration OK\n")
	checkDir(w, "Watch folder", cfg.WatchFolder)
	checkDir(w, "Validation folder", cfg.ValidationDir)
	checkDir(w, "Unknown root", cfg.DefaultUnknownFolder)
	fmt.Fprintf(w, "  Unknown folder capacity: %d\n", cfg.MaxUnknownFiles)
	fmt.Fprintf(w, "  Location marker: %s\n", cfg.LocationMarker)
	fmt.Fprintf(w, "  Metadata: %s\n", cfg.Metadata.Driver)
	if cfg.Indexing.Endpoint == "" {
		yellow.Fprintf(w, "  Index engine: no endpoint configured, recognized files will be archived\n")
	} else {
		fmt.Fprintf(w, "  Index engine: %s\n", cfg.Indexing.Endpoint)
	}

	types, props, collators := cache.Counts()
	green.Fprintf(w, "Metadata OK: %d document types, %d properties, %d collator paths\n", types, props, collators)
	if types == 0 {
		yellow.Fprintf(w, "  No document types defined, every file will be archived as unknown\n")
	}
}

func checkDir(w io.Writer, label, dir string) {
	yellow := color.New(color.FgYellow)
	if dir == "" {
		yellow.Fprintf(w, "  %s: not configured\n", label)
		return
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(w, "  %s: %s\n", label, dir)
	case err == nil:
		yellow.Fprintf(w, "  %s: %s is not a directory\n", label, dir)
	case os.IsNotExist(err):
		yellow.Fprintf(w, "  %s: %s (missing)\n", label, dir)
	default:
		yellow.Fprintf(w, "  %s: %s (%v)\n", label, dir, err)
	}
}
