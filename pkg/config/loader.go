// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for all environment variables.
	EnvPrefix = "PAASTA"
	// ProjectConfigFile is the project-level config file name.
	ProjectConfigFile = ".paasta.yaml"
)

// Loader loads configuration from files and environment.
type Loader struct {
	systemPath  string
	projectRoot string
	skipSystem  bool
}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{systemPath: DefaultSystemConfigPath}
}

// WithSystemPath overrides the system config path.
func (l *Loader) WithSystemPath(path string) *Loader {
	l.systemPath = path
	return l
}

// WithProjectRoot sets the directory searched for the project config.
func (l *Loader) WithProjectRoot(root string) *Loader {
	l.projectRoot = root
	return l
}

// SkipSystem skips loading the system config.
func (l *Loader) SkipSystem() *Loader {
	l.skipSystem = true
	return l
}

// Load loads configuration with full precedence order:
// 1. Defaults
// 2. System Config (/etc/paasta/paasta.yaml)
// 3. Project Config (./.paasta.yaml)
// 4. Environment Variables (PAASTA_*)
//
// Missing files are skipped. A file that exists but does not parse is an
// error.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if !l.skipSystem {
		if err := overlayFile(cfg, l.systemPath); err != nil {
			return nil, err
		}
	}

	root := l.projectRoot
	if root == "" {
		root = "."
	}
	if err := overlayFile(cfg, filepath.Join(root, ProjectConfigFile)); err != nil {
		return nil, err
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads defaults, then the given file, then environment
// overrides. The file must exist.
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile decodes path on top of cfg. Only keys present in the file
// replace existing values.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Format: PAASTA_SECTION__KEY=value
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PAASTA_CLUSTER"); v != "" {
		cfg.Cluster = v
	}
	if v := os.Getenv("PAASTA_SOA_DIR"); v != "" {
		cfg.SOADir = v
	}

	if v := os.Getenv("PAASTA_ZOOKEEPER__HOSTS"); v != "" {
		cfg.Zookeeper.Hosts = splitList(v)
	}

	if v := os.Getenv("PAASTA_STATE__BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("PAASTA_STATE__PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("PAASTA_STATE__LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: "state.lock_timeout", Err: err}
		}
		cfg.State.LockTimeout = d
	}

	if v := os.Getenv("PAASTA_MARATHON__URL"); v != "" {
		cfg.Marathon.URL = v
	}
	if v := os.Getenv("PAASTA_MARATHON__USER"); v != "" {
		cfg.Marathon.User = v
	}

	if v := os.Getenv("PAASTA_MESOS__MASTER_URL"); v != "" {
		cfg.Mesos.MasterURL = v
	}
	if v := os.Getenv("PAASTA_MESOS__CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "mesos.concurrency", Err: err}
		}
		cfg.Mesos.Concurrency = n
	}

	if v := os.Getenv("PAASTA_AWS__REGION"); v != "" {
		cfg.AWS.Region = v
	}

	if v := os.Getenv("PAASTA_GLOBAL__LOG_LEVEL"); v != "" {
		cfg.Global.LogLevel = v
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return "config error in " + e.Path + ": " + e.Err.Error()
	}
	if e.Field != "" {
		return "config error for " + e.Field + ": " + e.Err.Error()
	}
	return "config error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
