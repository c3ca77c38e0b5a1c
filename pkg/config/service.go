// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Autoscaling parameter keys.
const (
	ParamMetricsProvider = "metrics_provider"
	ParamDecisionPolicy  = "decision_policy"
	ParamSetpoint        = "setpoint"
)

// Desired states written by deploy tooling.
const (
	DesiredStateStart = "start"
	DesiredStateStop  = "stop"
)

// DeploymentsFile holds per-instance deploy controls inside a service dir.
const DeploymentsFile = "deployments.json"

// InstanceConfig is one Marathon instance of a service in a cluster.
type InstanceConfig struct {
	Service  string `yaml:"-"`
	Instance string `yaml:"-"`
	Cluster  string `yaml:"-"`

	Instances    *int           `yaml:"instances,omitempty"`
	MinInstances *int           `yaml:"min_instances,omitempty"`
	MaxInstances *int           `yaml:"max_instances,omitempty"`
	Autoscaling  map[string]any `yaml:"autoscaling,omitempty"`

	// DesiredState comes from deployments.json, not the yaml file.
	DesiredState string `yaml:"-"`
}

// AutoscalingParams returns the instance's autoscaling parameters merged
// over the defaults. The result is a fresh map the caller may modify.
func (c *InstanceConfig) AutoscalingParams() map[string]any {
	params := map[string]any{
		ParamMetricsProvider: "mesos_cpu",
		ParamDecisionPolicy:  "pid",
		ParamSetpoint:        0.8,
	}
	for k, v := range c.Autoscaling {
		params[k] = v
	}
	return params
}

// DecisionPolicy returns the configured decision policy name.
func (c *InstanceConfig) DecisionPolicy() string {
	name, _ := c.AutoscalingParams()[ParamDecisionPolicy].(string)
	return name
}

// MinInstanceCount returns min_instances, defaulting to 1.
func (c *InstanceConfig) MinInstanceCount() int {
	if c.MinInstances == nil {
		return 1
	}
	return *c.MinInstances
}

// MaxInstanceCount returns max_instances and whether it is set.
// Instances with max_instances set are autoscaled.
func (c *InstanceConfig) MaxInstanceCount() (int, bool) {
	if c.MaxInstances == nil {
		return 0, false
	}
	return *c.MaxInstances, true
}

// ConfiguredInstances returns the static instance count, defaulting to 1.
func (c *InstanceConfig) ConfiguredInstances() int {
	if c.Instances == nil {
		return 1
	}
	return *c.Instances
}

// LimitInstanceCount clamps n into [min_instances, max_instances] for
// autoscaled instances. Other instances are returned unchanged.
func (c *InstanceConfig) LimitInstanceCount(n int) int {
	hi, ok := c.MaxInstanceCount()
	if !ok {
		return n
	}
	if n > hi {
		n = hi
	}
	if lo := c.MinInstanceCount(); n < lo {
		n = lo
	}
	return n
}

// deploymentKey returns the "service:cluster.instance" key used by
// deployments.json.
func (c *InstanceConfig) deploymentKey() string {
	return fmt.Sprintf("%s:%s.%s", c.Service, c.Cluster, c.Instance)
}

// LoadInstanceConfigs loads every Marathon instance of every service in
// soaDir for the given cluster, sorted by service then instance.
func LoadInstanceConfigs(soaDir, cluster string) ([]*InstanceConfig, error) {
	pattern := filepath.Join(soaDir, "*", fmt.Sprintf("marathon-%s.yaml", cluster))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &ConfigError{Path: pattern, Err: err}
	}
	sort.Strings(files)

	var out []*InstanceConfig
	for _, f := range files {
		service := filepath.Base(filepath.Dir(f))
		configs, err := LoadServiceConfigs(soaDir, service, cluster)
		if err != nil {
			return nil, err
		}
		out = append(out, configs...)
	}
	return out, nil
}

// LoadServiceConfigs loads the Marathon instances of one service. Top level
// keys starting with "_" are yaml anchors/templates and are skipped.
func LoadServiceConfigs(soaDir, service, cluster string) ([]*InstanceConfig, error) {
	path := filepath.Join(soaDir, service, fmt.Sprintf("marathon-%s.yaml", cluster))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	raw := map[string]*InstanceConfig{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	controls, err := loadDesiredStates(filepath.Join(soaDir, service, DeploymentsFile))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*InstanceConfig, 0, len(names))
	for _, name := range names {
		ic := raw[name]
		if ic == nil {
			ic = &InstanceConfig{}
		}
		ic.Service = service
		ic.Instance = name
		ic.Cluster = cluster
		ic.DesiredState = DesiredStateStart
		if state, ok := controls[ic.deploymentKey()]; ok && state != "" {
			ic.DesiredState = state
		}
		out = append(out, ic)
	}
	return out, nil
}

type deploymentControl struct {
	DesiredState string `json:"desired_state"`
}

type deploymentsDoc struct {
	V1 map[string]deploymentControl `json:"v1"`
	V2 *struct {
		Controls map[string]deploymentControl `json:"controls"`
	} `json:"v2"`
}

// loadDesiredStates reads deployments.json. A missing file means every
// instance is started. v1 files key controls by git branch
// ("service:paasta-cluster.instance"); those keys are normalized to the
// "service:cluster.instance" form and v2 controls win over v1.
func loadDesiredStates(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var doc deploymentsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	out := make(map[string]string)
	for k, c := range doc.V1 {
		out[v1ControlKey(k)] = c.DesiredState
	}
	if doc.V2 != nil {
		for k, c := range doc.V2.Controls {
			out[k] = c.DesiredState
		}
	}
	return out, nil
}

func v1ControlKey(k string) string {
	service, branch, ok := strings.Cut(k, ":")
	if !ok {
		return k
	}
	return service + ":" + strings.TrimPrefix(branch, "paasta-")
}
