// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"time"
)

const (
	// DefaultSOADir is where service configuration is checked out.
	DefaultSOADir = "/nail/etc/services"
	// DefaultSystemConfigPath is the system-wide config file.
	DefaultSystemConfigPath = "/etc/paasta/paasta.yaml"
)

// State backends.
const (
	BackendZookeeper = "zookeeper"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
)

// DefaultConfig returns the default configuration.
// These values are used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		SOADir:    DefaultSOADir,
		Zookeeper: DefaultZookeeperConfig(),
		State:     DefaultStateConfig(),
		Marathon:  DefaultMarathonConfig(),
		Mesos:     DefaultMesosConfig(),
		Global:    DefaultGlobalConfig(),
	}
}

// DefaultZookeeperConfig returns default ensemble settings.
func DefaultZookeeperConfig() ZookeeperConfig {
	return ZookeeperConfig{
		SessionTimeout: 10 * time.Second,
	}
}

// DefaultStateConfig returns the default state backend.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		Backend:     BackendZookeeper,
		LockTimeout: time.Second,
	}
}

// DefaultMarathonConfig returns default Marathon settings.
func DefaultMarathonConfig() MarathonConfig {
	return MarathonConfig{
		PasswordEnv: "MARATHON_PASSWORD",
		Timeout:     30 * time.Second,
	}
}

// DefaultMesosConfig returns default Mesos settings.
func DefaultMesosConfig() MesosConfig {
	return MesosConfig{
		MasterURL:   "http://localhost:5050",
		Timeout:     10 * time.Second,
		Concurrency: 8,
	}
}

// DefaultGlobalConfig returns default global configuration.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		LogLevel: "info",
	}
}
