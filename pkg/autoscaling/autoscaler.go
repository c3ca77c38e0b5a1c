// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package autoscaling scales Marathon service instances from their observed
// utilization and scales cluster capacity (AWS spot fleet requests) from
// Mesos resource usage.
//
// Metrics providers, decision policies and scalers are pluggable through a
// Registry. Controller memory (PID terms, cpu samples) and the desired
// instance counts live in a state.Store.
package autoscaling

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/paasta-tools/paasta/pkg/config"
	"github.com/paasta-tools/paasta/pkg/fleet"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/mesos"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/state"
)

// MarathonAPI lists Marathon tasks.
type MarathonAPI interface {
	ListTasks(ctx context.Context) ([]marathon.Task, error)
}

// MesosAPI reads Mesos cluster state.
type MesosAPI interface {
	State(ctx context.Context) (*mesos.State, error)
	RunningTasks(ctx context.Context, st *mesos.State) ([]mesos.Task, error)
}

// Autoscaler runs autoscaling passes against one cluster.
type Autoscaler struct {
	cfg         *config.Config
	store       state.Store
	marathon    MarathonAPI
	mesos       MesosAPI
	fleet       fleet.API
	httpClient  *http.Client
	registry    *Registry
	log         observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	dryRun      bool
	concurrency int
}

// Option configures an Autoscaler.
type Option func(*Autoscaler)

// WithMarathon sets the Marathon client.
func WithMarathon(m MarathonAPI) Option {
	return func(a *Autoscaler) { a.marathon = m }
}

// WithMesos sets the Mesos client.
func WithMesos(m MesosAPI) Option {
	return func(a *Autoscaler) { a.mesos = m }
}

// WithFleet sets the spot fleet client.
func WithFleet(f fleet.API) Option {
	return func(a *Autoscaler) { a.fleet = f }
}

// WithHTTPClient sets the client used by the http metrics provider.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Autoscaler) { a.httpClient = c }
}

// WithRegistry replaces DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(a *Autoscaler) { a.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(a *Autoscaler) { a.log = l }
}

// WithMetrics sets the run counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Autoscaler) { a.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Autoscaler) { a.now = now }
}

// WithDryRun makes every decision without applying it. State writes go to
// an in-memory overlay and no capacity is changed.
func WithDryRun(dryRun bool) Option {
	return func(a *Autoscaler) { a.dryRun = dryRun }
}

// New creates an Autoscaler for cfg backed by store.
func New(cfg *config.Config, store state.Store, opts ...Option) *Autoscaler {
	a := &Autoscaler{
		cfg:         cfg,
		store:       store,
		registry:    DefaultRegistry,
		log:         observability.NewNop(),
		metrics:     observability.NewMetrics(),
		now:         time.Now,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		concurrency: cfg.Mesos.Concurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.concurrency < 1 {
		a.concurrency = 1
	}
	if a.dryRun {
		a.store = state.NewOverlay(store)
	}
	a.log = a.log.With(observability.String("run_id", uuid.NewString()))
	return a
}

// Metrics returns the counters collected so far.
func (a *Autoscaler) Metrics() *observability.Metrics {
	return a.metrics
}

// Store returns the store decisions are written to. In dry-run mode this
// is the overlay.
func (a *Autoscaler) Store() state.Store {
	return a.store
}

func (a *Autoscaler) logEvent(ic *config.InstanceConfig, level, line string) {
	observability.LogEvent(a.log, observability.Event{
		Service:  ic.Service,
		Cluster:  ic.Cluster,
		Instance: ic.Instance,
		Level:    level,
		Line:     line,
	})
}
