// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paasta-tools/paasta/pkg/config"
	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/mesos"
)

// Kind names a family of pluggable autoscaling components.
type Kind string

const (
	KindServiceMetricsProvider Kind = "metrics_provider"
	KindClusterMetricsProvider Kind = "cluster_metrics_provider"
	KindDecisionPolicy         Kind = "decision_policy"
	KindScaler                 Kind = "scaler"
)

// ServiceInput is what a service metrics provider sees.
type ServiceInput struct {
	Config        *config.InstanceConfig
	MarathonTasks []marathon.Task
	MesosTasks    []mesos.Task
	// Params are the instance's autoscaling params minus the component
	// selectors and setpoint.
	Params map[string]any
}

// ServiceMetricsProvider returns a service's utilization in [0, 1].
type ServiceMetricsProvider func(ctx context.Context, a *Autoscaler, in ServiceInput) (float64, error)

// DecisionInput is what a decision policy sees.
type DecisionInput struct {
	// StateRoot is where the policy may keep memory between runs.
	StateRoot string
	Current   int
	Min       int
	Max       int
	Error     float64
	Params    map[string]any
}

// DecisionPolicy returns how many instances to add (negative to remove).
type DecisionPolicy func(ctx context.Context, a *Autoscaler, in DecisionInput) (int, error)

// ClusterMetricsProvider returns the utilization of a cluster resource.
type ClusterMetricsProvider func(ctx context.Context, a *Autoscaler, res config.ResourceConfig, st *mesos.State) (float64, error)

// Scaler acts on a cluster resource given its utilization error.
type Scaler func(ctx context.Context, a *Autoscaler, res config.ResourceConfig, utilizationError float64) error

// Registry holds named autoscaling components by kind.
type Registry struct {
	mu         sync.RWMutex
	components map[Kind]map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[Kind]map[string]any)}
}

// DefaultRegistry contains the built-in components.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterServiceMetricsProvider("http", HTTPMetricsProvider)
	r.RegisterServiceMetricsProvider("mesos_cpu", MesosCPUMetricsProvider)
	r.RegisterDecisionPolicy("threshold", ThresholdDecisionPolicy)
	r.RegisterDecisionPolicy("pid", PIDDecisionPolicy)
	r.RegisterClusterMetricsProvider(config.ResourceTypeSpotFleet, SpotFleetMetricsProvider)
	r.RegisterScaler(config.ResourceTypeSpotFleet, SpotFleetScaler)
	return r
}

func (r *Registry) register(kind Kind, name string, component any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.components[kind] == nil {
		r.components[kind] = make(map[string]any)
	}
	r.components[kind][name] = component
}

func (r *Registry) lookup(kind Kind, name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[kind][name]
	if !ok {
		return nil, paastaerrors.ConfigError(fmt.Sprintf("unknown %s %q", kind, name), nil).
			WithContext("available", r.namesLocked(kind))
	}
	return c, nil
}

// Names lists the registered component names of a kind.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked(kind)
}

func (r *Registry) namesLocked(kind Kind) []string {
	names := make([]string, 0, len(r.components[kind]))
	for name := range r.components[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterServiceMetricsProvider registers a service metrics provider.
func (r *Registry) RegisterServiceMetricsProvider(name string, fn ServiceMetricsProvider) {
	r.register(KindServiceMetricsProvider, name, fn)
}

// RegisterClusterMetricsProvider registers a cluster metrics provider.
func (r *Registry) RegisterClusterMetricsProvider(name string, fn ClusterMetricsProvider) {
	r.register(KindClusterMetricsProvider, name, fn)
}

// RegisterDecisionPolicy registers a decision policy.
func (r *Registry) RegisterDecisionPolicy(name string, fn DecisionPolicy) {
	r.register(KindDecisionPolicy, name, fn)
}

// RegisterScaler registers a scaler.
func (r *Registry) RegisterScaler(name string, fn Scaler) {
	r.register(KindScaler, name, fn)
}

// ServiceMetricsProvider returns the named service metrics provider.
func (r *Registry) ServiceMetricsProvider(name string) (ServiceMetricsProvider, error) {
	c, err := r.lookup(KindServiceMetricsProvider, name)
	if err != nil {
		return nil, err
	}
	return c.(ServiceMetricsProvider), nil
}

// ClusterMetricsProvider returns the named cluster metrics provider.
func (r *Registry) ClusterMetricsProvider(name string) (ClusterMetricsProvider, error) {
	c, err := r.lookup(KindClusterMetricsProvider, name)
	if err != nil {
		return nil, err
	}
	return c.(ClusterMetricsProvider), nil
}

// DecisionPolicy returns the named decision policy.
func (r *Registry) DecisionPolicy(name string) (DecisionPolicy, error) {
	c, err := r.lookup(KindDecisionPolicy, name)
	if err != nil {
		return nil, err
	}
	return c.(DecisionPolicy), nil
}

// Scaler returns the named scaler.
func (r *Registry) Scaler(name string) (Scaler, error) {
	c, err := r.lookup(KindScaler, name)
	if err != nil {
		return nil, err
	}
	return c.(Scaler), nil
}
