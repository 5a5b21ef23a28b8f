// Package config loads docrouter settings from a YAML file, command-line flags
// and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MetadataConfig selects the metadata database
type MetadataConfig struct {
	// Driver is the database/sql driver: sqlite3 or mysql
	Driver string `yaml:"driver" validate:"oneof=sqlite3 mysql"`

	// DSN is the data source name; a file path for sqlite3
	DSN string `yaml:"dsn" validate:"required"`
}

// IndexingConfig locates the index engine gateway
type IndexingConfig struct {
	// Endpoint is the base URL of the engine's REST gateway
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// Database is the engine database to log into
	Database string `yaml:"database"`

	// Server is the engine database server
	Server string `yaml:"server"`

	// Timeout bounds each gateway request
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// LoggingConfig bounds the size of the file logs
type LoggingConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int `yaml:"max_age_days" validate:"gte=0"`
}

// Config represents docrouter configuration options
type Config struct {
	// WatchFolder is scanned for incoming *.tif files. Empty means nothing is processed.
	WatchFolder string `yaml:"watch_folder"`

	// ValidationDir receives copies and XML records of validated documents
	ValidationDir string `yaml:"validation_dir" validate:"required"`

	// DefaultUnknownFolder is the unknown-tree root used when no collator path applies
	DefaultUnknownFolder string `yaml:"default_unknown_folder" validate:"required"`

	// MaxUnknownFiles is the number of files an unknown subfolder holds before a new one is started
	MaxUnknownFiles int `yaml:"max_unknown_files" validate:"gt=0"`

	// LocationMarker is stripped from a document-type code to get its location code
	LocationMarker string `yaml:"location_marker" validate:"required"`

	// PollInterval is the time between scheduled runs in serve mode
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	// LockFile keeps two docrouter processes from draining the same folder
	LockFile string `yaml:"lock_file" validate:"required"`

	Metadata MetadataConfig `yaml:"metadata"`
	Indexing IndexingConfig `yaml:"indexing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns a Config with default values rooted at the docrouter home
func DefaultConfig() *Config {
	home := DefaultHome()
	return &Config{
		ValidationDir:        filepath.Join(home, "validation"),
		DefaultUnknownFolder: filepath.Join(home, "unknown"),
		MaxUnknownFiles:      500,
		LocationMarker:       "XXX",
		PollInterval:         5 * time.Minute,
		LogLevel:             "info",
		LogDir:               filepath.Join(home, "logs"),
		LockFile:             filepath.Join(home, "docrouter.lock"),
		Metadata: MetadataConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join(home, "metadata.db"),
		},
		Indexing: IndexingConfig{
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  50,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
	}
}

// yamlConfig mirrors Config with durations as strings
type yamlConfig struct {
	WatchFolder          string `yaml:"watch_folder"`
	ValidationDir        string `yaml:"validation_dir"`
	DefaultUnknownFolder string `yaml:"default_unknown_folder"`
	MaxUnknownFiles      int    `yaml:"max_unknown_files"`
	LocationMarker       string `yaml:"location_marker"`
	PollInterval         string `yaml:"poll_interval"`
	LogLevel             string `yaml:"log_level"`
	LogDir               string `yaml:"log_dir"`
	LockFile             string `yaml:"lock_file"`
	Metadata             struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"metadata"`
	Indexing struct {
		Endpoint string `yaml:"endpoint"`
		Database string `yaml:"database"`
		Server   string `yaml:"server"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"indexing"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoadConfig loads configuration from path, layered over the defaults.
// A missing file yields the defaults; a malformed one is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&cfg.WatchFolder, y.WatchFolder)
	setString(&cfg.ValidationDir, y.ValidationDir)
	setString(&cfg.DefaultUnknownFolder, y.DefaultUnknownFolder)
	if y.MaxUnknownFiles != 0 {
		cfg.MaxUnknownFiles = y.MaxUnknownFiles
	}
	setString(&cfg.LocationMarker, y.LocationMarker)
	if err := setDuration(&cfg.PollInterval, "poll_interval", y.PollInterval); err != nil {
		return nil, err
	}
	setString(&cfg.LogLevel, y.LogLevel)
	setString(&cfg.LogDir, y.LogDir)
	setString(&cfg.LockFile, y.LockFile)

	setString(&cfg.Metadata.Driver, y.Metadata.Driver)
	setString(&cfg.Metadata.DSN, y.Metadata.DSN)

	setString(&cfg.Indexing.Endpoint, y.Indexing.Endpoint)
	setString(&cfg.Indexing.Database, y.Indexing.Database)
	setString(&cfg.Indexing.Server, y.Indexing.Server)
	if err := setDuration(&cfg.Indexing.Timeout, "indexing.timeout", y.Indexing.Timeout); err != nil {
		return nil, err
	}

	if y.Logging.MaxSizeMB != 0 {
		cfg.Logging.MaxSizeMB = y.Logging.MaxSizeMB
	}
	if y.Logging.MaxBackups != 0 {
		cfg.Logging.MaxBackups = y.Logging.MaxBackups
	}
	if y.Logging.MaxAgeDays != 0 {
		cfg.Logging.MaxAgeDays = y.Logging.MaxAgeDays
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", name, v, err)
	}
	*dst = d
	return nil
}

// MergeWithFlags applies CLI flags over the configuration. Nil flags leave the
// configured value alone.
func (c *Config) MergeWithFlags(watchFolder *string, logLevel *string, logDir *string, pollInterval *time.Duration) {
	if watchFolder != nil {
		c.WatchFolder = *watchFolder
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if pollInterval != nil {
		c.PollInterval = *pollInterval
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration values
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// fieldMessage renders a validation failure using the YAML key of the field
func fieldMessage(fe validator.FieldError) string {
	key := yamlKey(fe.StructNamespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be > %s", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", key, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", key, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}

var yamlKeys = map[string]string{
	"ValidationDir":        "validation_dir",
	"DefaultUnknownFolder": "default_unknown_folder",
	"MaxUnknownFiles":      "max_unknown_files",
	"LocationMarker":       "location_marker",
	"PollInterval":         "poll_interval",
	"LockFile":             "lock_file",
	"Metadata":             "metadata",
	"Driver":               "driver",
	"DSN":                  "dsn",
	"Indexing":             "indexing",
	"Endpoint":             "endpoint",
	"Timeout":              "timeout",
	"Logging":              "logging",
	"MaxSizeMB":            "max_size_mb",
	"MaxBackups":           "max_backups",
	"MaxAgeDays":           "max_age_days",
}

// yamlKey turns "Config.Metadata.DSN" into "metadata.dsn"
func yamlKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if k, ok := yamlKeys[p]; ok {
			parts[i] = k
		}
	}
	return strings.Join(parts, ".")
}
