// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ResourceTypeSpotFleet is the only cluster autoscaling resource type.
const ResourceTypeSpotFleet = "aws_spot_fleet_request"

// Validator validates configuration.
type Validator struct {
	allowInlineSecrets bool // For testing only
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the settings every autoscaling run needs. Marathon
// settings are only checked by ValidateServices.
func (v *Validator) Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Cluster) == "" {
		return &ValidationError{Field: "cluster", Message: "must be set"}
	}
	if err := v.ValidateState(cfg); err != nil {
		return err
	}
	if err := validateURL("mesos.master_url", cfg.Mesos.MasterURL); err != nil {
		return err
	}
	if cfg.Mesos.Concurrency < 1 {
		return &ValidationError{Field: "mesos.concurrency", Value: cfg.Mesos.Concurrency, Message: "must be positive"}
	}
	if err := v.ValidateResources(cfg.ClusterAutoscalingResources); err != nil {
		return err
	}
	return v.ValidateGlobal(&cfg.Global)
}

// ValidateServices validates a configuration for a service autoscaling
// run, which also talks to Marathon.
func (v *Validator) ValidateServices(cfg *Config) error {
	if err := v.Validate(cfg); err != nil {
		return err
	}
	return v.ValidateMarathon(&cfg.Marathon)
}

// ValidateState validates the state backend selection.
func (v *Validator) ValidateState(cfg *Config) error {
	switch cfg.State.Backend {
	case BackendZookeeper:
		if len(cfg.Zookeeper.Hosts) == 0 {
			return &ValidationError{Field: "zookeeper.hosts", Message: "must be set for the zookeeper backend"}
		}
	case BackendSQLite:
		if cfg.State.Path == "" {
			return &ValidationError{Field: "state.path", Message: "must be set for the sqlite backend"}
		}
	case BackendMemory:
	default:
		return &ValidationError{
			Field:   "state.backend",
			Value:   cfg.State.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join([]string{BackendZookeeper, BackendSQLite, BackendMemory}, ", ")),
		}
	}
	if cfg.State.LockTimeout <= 0 {
		return &ValidationError{Field: "state.lock_timeout", Value: cfg.State.LockTimeout, Message: "must be positive"}
	}
	return nil
}

// ValidateMarathon validates Marathon configuration.
func (v *Validator) ValidateMarathon(cfg *MarathonConfig) error {
	if err := validateURL("marathon.url", cfg.URL); err != nil {
		return err
	}
	if cfg.Timeout < 0 {
		return &ValidationError{Field: "marathon.timeout", Value: cfg.Timeout, Message: "must be positive"}
	}
	if !v.allowInlineSecrets && cfg.User != "" && cfg.PasswordEnv == "" {
		return &ValidationError{
			Field:   "marathon.password_env",
			Message: "must be set when marathon.user is set (password field is not allowed)",
		}
	}
	return nil
}

// ValidateResources validates cluster autoscaling resources.
func (v *Validator) ValidateResources(resources map[string]ResourceConfig) error {
	ids := make([]string, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := resources[id]
		field := "cluster_autoscaling_resources." + id
		if r.Type != ResourceTypeSpotFleet {
			return &ValidationError{Field: field + ".type", Value: r.Type, Message: "must be " + ResourceTypeSpotFleet}
		}
		if r.ID == "" {
			return &ValidationError{Field: field + ".id", Message: "must be set"}
		}
		if r.MinInstances < 0 {
			return &ValidationError{Field: field + ".min_instances", Value: r.MinInstances, Message: "must be non-negative"}
		}
		if r.MaxInstances < r.MinInstances {
			return &ValidationError{Field: field + ".max_instances", Value: r.MaxInstances, Message: "must not be lower than min_instances"}
		}
	}
	return nil
}

// ValidateGlobal validates global configuration.
func (v *Validator) ValidateGlobal(cfg *GlobalConfig) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if cfg.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if strings.EqualFold(cfg.LogLevel, level) {
				valid = true
				break
			}
		}
		if !valid {
			return &ValidationError{
				Field:   "global.log_level",
				Value:   cfg.LogLevel,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels, ", ")),
			}
		}
	}
	return nil
}

// validateURL accepts absolute http and https URLs with a host.
func validateURL(field, raw string) error {
	if raw == "" {
		return &ValidationError{Field: field, Message: "must be set"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: field, Value: raw, Message: "invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: field, Value: raw, Message: "only http and https are allowed"}
	}
	if u.Hostname() == "" {
		return &ValidationError{Field: field, Value: raw, Message: "URL has no hostname"}
	}
	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for %s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}
