package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".grantscan"

// DefaultEnvFile is the default credentials file name.
const DefaultEnvFile = ".env"

// Environment variables holding credentials.
const (
	EnvAirtableAPIKey    = "AIRTABLE_API_KEY"
	EnvAirtableBaseID    = "AIRTABLE_BASE_ID"
	EnvAirtableTableName = "AIRTABLE_TABLE_NAME"
	EnvFirecrawlAPIKey   = "FIRECRAWL_API_KEY"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads settings and per-source configuration from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Sources == nil {
		cf.Sources = make(map[string]SourceConfig)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .grantscan in the current directory
// 3. Look for .grantscan in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// CredentialsFromEnv reads credentials from the process environment.
func CredentialsFromEnv() Credentials {
	c := Credentials{
		AirtableAPIKey:    strings.TrimSpace(os.Getenv(EnvAirtableAPIKey)),
		AirtableBaseID:    strings.TrimSpace(os.Getenv(EnvAirtableBaseID)),
		AirtableTableName: strings.TrimSpace(os.Getenv(EnvAirtableTableName)),
		FirecrawlAPIKey:   strings.TrimSpace(os.Getenv(EnvFirecrawlAPIKey)),
	}
	if c.AirtableTableName == "" {
		c.AirtableTableName = DefaultAirtableTable
	}
	return c
}
