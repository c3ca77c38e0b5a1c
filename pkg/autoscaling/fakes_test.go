// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/paasta-tools/paasta/pkg/config"
	"github.com/paasta-tools/paasta/pkg/fleet"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/mesos"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/state"
)

type fakeMarathon struct {
	tasks []marathon.Task
	calls int
}

func (f *fakeMarathon) ListTasks(context.Context) ([]marathon.Task, error) {
	f.calls++
	return f.tasks, nil
}

type fakeMesos struct {
	state *mesos.State
	tasks []mesos.Task
}

func (f *fakeMesos) State(context.Context) (*mesos.State, error) {
	if f.state == nil {
		return &mesos.State{}, nil
	}
	return f.state, nil
}

func (f *fakeMesos) RunningTasks(context.Context, *mesos.State) ([]mesos.Task, error) {
	return f.tasks, nil
}

type fakeFleet struct {
	mu        sync.Mutex
	instances map[string][]string
	ips       map[string]string
	requests  map[string]*fleet.Request
	modified  map[string]int
}

func (f *fakeFleet) ActiveInstanceIDs(_ context.Context, requestID string) ([]string, error) {
	return f.instances[requestID], nil
}

func (f *fakeFleet) PrivateIPs(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if ip, ok := f.ips[id]; ok {
			out = append(out, ip)
		}
	}
	return out, nil
}

func (f *fakeFleet) DescribeRequest(_ context.Context, requestID string) (*fleet.Request, error) {
	req, ok := f.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("no request %s", requestID)
	}
	cp := *req
	return &cp, nil
}

func (f *fakeFleet) SetTargetCapacity(_ context.Context, requestID string, capacity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modified == nil {
		f.modified = make(map[string]int)
	}
	f.modified[requestID] = capacity
	return nil
}

// fixedProvider reports the "value" param as utilization.
func fixedProvider(_ context.Context, _ *Autoscaler, in ServiceInput) (float64, error) {
	return paramFloat(in.Params, "value")
}

func testRegistry() *Registry {
	r := newDefaultRegistry()
	r.RegisterServiceMetricsProvider("fixed", fixedProvider)
	return r
}

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewFromZap(zap.New(core)), logs
}

func testConfig(soaDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Cluster = "norcal"
	cfg.SOADir = soaDir
	cfg.State.Backend = config.BackendMemory
	cfg.State.LockTimeout = 50 * time.Millisecond
	return cfg
}

func intPtr(n int) *int { return &n }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestAutoscaler(t *testing.T, cfg *config.Config, store state.Store, opts ...Option) (*Autoscaler, *observer.ObservedLogs) {
	t.Helper()
	log, logs := observedLogger()
	opts = append([]Option{WithLogger(log), WithRegistry(testRegistry())}, opts...)
	return New(cfg, store, opts...), logs
}
