package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Credentials log docrouter into the index engine
type Credentials struct {
	User     string `env:"DOCROUTER_INDEX_USER"`
	Password string `env:"DOCROUTER_INDEX_PASSWORD"`
}

// LoadCredentials reads the index engine login from the environment. Variables
// in envFile, when it exists, are loaded first without overriding anything
// already set in the process environment.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Credentials{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}
