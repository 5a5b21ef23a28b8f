package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/harrison/docrouter/internal/config"
	"github.com/harrison/docrouter/internal/indexing"
	"github.com/harrison/docrouter/internal/ingest"
	"github.com/harrison/docrouter/internal/logger"
	"github.com/harrison/docrouter/internal/metadata"
	"github.com/harrison/docrouter/internal/router"
	"github.com/harrison/docrouter/internal/unknown"
	"github.com/spf13/cobra"
)

// loadSettings loads the config file named by --config, merges the flags the
// command was given and validates the result.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	cfg.MergeWithFlags(
		changedString(cmd, "watch-folder"),
		changedString(cmd, "log-level"),
		changedString(cmd, "log-dir"),
		changedDuration(cmd, "poll-interval"),
	)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// changedString returns the flag value when it was set on the command line
func changedString(cmd *cobra.Command, name string) *string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	v := f.Value.String()
	return &v
}

func changedDuration(cmd *cobra.Command, name string) *time.Duration {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	d, err := cmd.Flags().GetDuration(name)
	if err != nil {
		return nil
	}
	return &d
}

// app holds the collaborators shared by the commands that route files
type app struct {
	cfg     *config.Config
	log     logger.Logger
	fileLog *logger.FileLogger
	store   *metadata.Store
	index   *indexing.HTTPClient
}

// openApp wires the logger, the metadata store and the index engine client.
// The caller must Close it.
func openApp(cmd *cobra.Command, cfg *config.Config, out io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	console := logger.NewConsoleLogger(out, cfg.LogLevel)
	a.log = console
	if cfg.LogDir != "" {
		rotation := logger.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
		fl, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel, rotation)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		a.fileLog = fl
		a.log = logger.NewMultiLogger(console, fl)
	}

	store, err := metadata.NewStore(cfg.Metadata.Driver, cfg.Metadata.DSN)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	a.store = store

	envFile, _ := cmd.Flags().GetString("env-file")
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.index = indexing.NewHTTPClient(indexing.ClientConfig{
		Endpoint: cfg.Indexing.Endpoint,
		Database: cfg.Indexing.Database,
		Server:   cfg.Indexing.Server,
		User:     creds.User,
		Password: creds.Password,
		Timeout:  cfg.Indexing.Timeout,
	})

	return a, nil
}

// newLoop creates a fresh ingestion run. Each run reloads the metadata cache.
func (a *app) newLoop() *ingest.Loop {
	return ingest.NewLoop(ingest.Deps{
		Source:    a.store,
		Audit:     a.store,
		Index:     a.index,
		Allocator: unknown.NewAllocator(),
		Logger:    a.log,
		Options: router.Options{
			ValidationDir:        a.cfg.ValidationDir,
			DefaultUnknownFolder: a.cfg.DefaultUnknownFolder,
			MaxUnknownFiles:      a.cfg.MaxUnknownFiles,
			LocationMarker:       a.cfg.LocationMarker,
		},
	})
}

// Close releases the store and the run log
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.fileLog != nil {
		a.fileLog.Close()
	}
}
