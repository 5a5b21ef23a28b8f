package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the docrouter home directory
const HomeEnv = "DOCROUTER_HOME"

// DefaultHome returns $DOCROUTER_HOME, or ./.docrouter when it is unset.
// The directory is not created.
func DefaultHome() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	return ".docrouter"
}

// GetHome returns the docrouter home directory, creating it if needed
func GetHome() (string, error) {
	home := DefaultHome()
	if !filepath.IsAbs(home) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		home = filepath.Join(cwd, home)
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create docrouter home directory: %w", err)
	}
	return home, nil
}

// DefaultConfigPath returns the config file location under the home directory
func DefaultConfigPath() string {
	return filepath.Join(DefaultHome(), "config.yaml")
}
