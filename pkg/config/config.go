// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config provides configuration management for paasta.
//
// Configuration Loading Order (later overrides earlier):
// 1. Defaults (hardcoded)
// 2. System Config: /etc/paasta/paasta.yaml
// 3. Project Config: ./.paasta.yaml
// 4. Environment Variables: PAASTA_*
//
// Per-service configuration lives in the soa directory and is loaded
// separately (see service.go).
package config

import (
	"os"
	"time"
)

// Config represents the system configuration of one paasta cluster.
type Config struct {
	Cluster   string          `yaml:"cluster"`
	SOADir    string          `yaml:"soa_dir"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	State     StateConfig     `yaml:"state"`
	Marathon  MarathonConfig  `yaml:"marathon"`
	Mesos     MesosConfig     `yaml:"mesos"`
	AWS       AWSConfig       `yaml:"aws"`
	// ClusterAutoscalingResources is keyed by an operator chosen identifier.
	ClusterAutoscalingResources map[string]ResourceConfig `yaml:"cluster_autoscaling_resources"`
	Global                      GlobalConfig              `yaml:"global"`
}

// ZookeeperConfig contains the coordination ensemble settings.
type ZookeeperConfig struct {
	Hosts          []string      `yaml:"hosts"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// StateConfig selects where autoscaling state and the run lock are kept.
type StateConfig struct {
	Backend     string        `yaml:"backend"` // zookeeper, sqlite, memory
	Path        string        `yaml:"path"`    // sqlite database file
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// MarathonConfig contains Marathon API settings.
type MarathonConfig struct {
	URL         string        `yaml:"url"`
	User        string        `yaml:"user"`
	PasswordEnv string        `yaml:"password_env"` // e.g., "MARATHON_PASSWORD"
	Timeout     time.Duration `yaml:"timeout"`
	// password field is NOT allowed - must use password_env
}

// Password resolves the Marathon password from the configured variable.
func (m MarathonConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// MesosConfig contains Mesos master and agent settings.
type MesosConfig struct {
	MasterURL   string        `yaml:"master_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"` // parallel agent requests
}

// AWSConfig contains AWS settings for cluster autoscaling.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// ResourceConfig is one cluster autoscaling resource.
type ResourceConfig struct {
	Type         string `yaml:"type"`
	ID           string `yaml:"id"`
	Pool         string `yaml:"pool"`
	MinInstances int    `yaml:"min_instances"`
	MaxInstances int    `yaml:"max_instances"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}
