// Package config provides configuration structures and utilities for grantscan.
// It defines the orchestration settings (threshold, concurrency, retries,
// caps), HTTP collection settings, persistence and report preferences, the
// optional .grantscan YAML file with per-source overrides, and the
// credentials read from the environment.
package config
