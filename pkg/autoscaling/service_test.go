// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paasta-tools/paasta/pkg/config"
	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/mesos"
	"github.com/paasta-tools/paasta/pkg/state"
)

func autoscaledConfig(utilization float64) *config.InstanceConfig {
	return &config.InstanceConfig{
		Service:      "web",
		Instance:     "main",
		Cluster:      "norcal",
		MinInstances: intPtr(2),
		MaxInstances: intPtr(10),
		DesiredState: config.DesiredStateStart,
		Autoscaling: map[string]any{
			"metrics_provider": "fixed",
			"decision_policy":  "threshold",
			"value":            utilization,
		},
	}
}

func healthyTasks(n int) []marathon.Task {
	tasks := make([]marathon.Task, n)
	for i := range tasks {
		tasks[i] = marathon.Task{
			ID:                 "web.main.gitabc.config1." + string(rune('a'+i)),
			HealthCheckResults: []marathon.HealthCheckResult{{Alive: true}},
		}
	}
	return tasks
}

func TestCurrentInstances(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a := New(testConfig(t.TempDir()), store)

	ic := autoscaledConfig(0.5)
	n, err := a.CurrentInstances(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "missing count starts at min_instances")

	require.NoError(t, store.Set(ctx, "/autoscaling/web/main/instances", []byte("40")))
	n, err = a.CurrentInstances(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "stored count is clamped to max_instances")

	stopped := autoscaledConfig(0.5)
	stopped.DesiredState = config.DesiredStateStop
	n, err = a.CurrentInstances(ctx, stopped)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	static := &config.InstanceConfig{Service: "api", Instance: "main", Instances: intPtr(3)}
	n, err = a.CurrentInstances(ctx, static)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAutoscaleMarathonInstanceDelays(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a, logs := newTestAutoscaler(t, testConfig(t.TempDir()), store)

	require.NoError(t, a.AutoscaleMarathonInstance(ctx, autoscaledConfig(1.0), healthyTasks(3), nil))

	entries := logs.FilterMessage("Delaying scaling as marathon is either waiting for resources or is delayed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "web", entries[0].ContextMap()["service"])
	_, err := store.Get(ctx, "/autoscaling/web/main/instances")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.Equal(t, 1, a.Metrics().Get("decisions", map[string]string{"kind": "service", "direction": "delayed"}))
}

func TestAutoscaleMarathonInstanceScales(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a, logs := newTestAutoscaler(t, testConfig(t.TempDir()), store)
	require.NoError(t, state.SetInt(ctx, store, "/autoscaling/web/main/instances", 4))

	require.NoError(t, a.AutoscaleMarathonInstance(ctx, autoscaledConfig(1.0), healthyTasks(4), nil))

	n, err := state.GetInt(ctx, store, "/autoscaling/web/main/instances")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, logs.FilterMessage("Scaling from 4 to 5 instances (20% overutilized)").Len())
}

func TestAutoscaleMarathonInstanceStays(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a, logs := newTestAutoscaler(t, testConfig(t.TempDir()), store)
	require.NoError(t, state.SetInt(ctx, store, "/autoscaling/web/main/instances", 4))

	require.NoError(t, a.AutoscaleMarathonInstance(ctx, autoscaledConfig(0.7), healthyTasks(4), nil))

	entries := logs.FilterMessage("Staying at 4 instances (utilization within thresholds)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "debug", entries[0].ContextMap()["level"])
}

func TestAutoscaleMarathonInstanceRespectsMin(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a, _ := newTestAutoscaler(t, testConfig(t.TempDir()), store)

	// Two instances at the floor, idle: the threshold policy asks for one
	// fewer but min_instances wins.
	require.NoError(t, a.AutoscaleMarathonInstance(ctx, autoscaledConfig(0.0), healthyTasks(2), nil))
	_, err := store.Get(ctx, "/autoscaling/web/main/instances")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestAutoscaleMarathonInstanceUnknownPolicy(t *testing.T) {
	a, _ := newTestAutoscaler(t, testConfig(t.TempDir()), state.NewMemoryStore())
	ic := autoscaledConfig(1.0)
	ic.Autoscaling["decision_policy"] = "magic"

	err := a.AutoscaleMarathonInstance(context.Background(), ic, healthyTasks(2), nil)
	assert.ErrorContains(t, err, `unknown decision_policy "magic"`)
}

func TestAutoscaleMarathonInstanceRejectsNonFiniteUtilization(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a, _ := newTestAutoscaler(t, testConfig(t.TempDir()), store)

	for _, u := range []float64{math.Inf(1), math.NaN()} {
		ic := autoscaledConfig(u)
		ic.Autoscaling["decision_policy"] = "pid"
		err := a.AutoscaleMarathonInstance(ctx, ic, healthyTasks(2), nil)
		assert.True(t, paastaerrors.IsType(err, paastaerrors.ErrNoData), "utilization %v: got %v", u, err)
	}
	_, err := store.Get(ctx, "/autoscaling/web/main/instances")
	assert.ErrorIs(t, err, state.ErrNotFound)
	_, err = store.Get(ctx, "/autoscaling/web/main/pid_iterm")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestAutoscaleMarathonInstanceDryRun(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, state.SetInt(ctx, store, "/autoscaling/web/main/instances", 4))
	a, _ := newTestAutoscaler(t, testConfig(t.TempDir()), store, WithDryRun(true))

	require.NoError(t, a.AutoscaleMarathonInstance(ctx, autoscaledConfig(1.0), healthyTasks(4), nil))

	n, err := state.GetInt(ctx, store, "/autoscaling/web/main/instances")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "dry run must not write through")
	n, err = state.GetInt(ctx, a.Store(), "/autoscaling/web/main/instances")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func writeSOA(t *testing.T, soaDir, path, content string) {
	t.Helper()
	full := filepath.Join(soaDir, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestAutoscaleServices(t *testing.T) {
	ctx := context.Background()
	soa := t.TempDir()
	writeSOA(t, soa, "web/marathon-norcal.yaml", `
main:
  min_instances: 1
  max_instances: 10
  autoscaling: {metrics_provider: fixed, decision_policy: threshold, value: 1.0}
stopped:
  max_instances: 10
  autoscaling: {metrics_provider: fixed, decision_policy: threshold, value: 1.0}
custom:
  max_instances: 10
  autoscaling: {decision_policy: bespoke}
static:
  instances: 3
unhealthy:
  max_instances: 10
  autoscaling: {metrics_provider: fixed, decision_policy: threshold, value: 1.0}
`)
	writeSOA(t, soa, "web/deployments.json", `{"v2": {"controls": {"web:norcal.stopped": {"desired_state": "stop"}}}}`)

	store := state.NewMemoryStore()
	require.NoError(t, state.SetInt(ctx, store, "/autoscaling/web/main/instances", 2))

	mt := &fakeMarathon{tasks: []marathon.Task{
		{ID: "web.main.gitabc.config1.a", HealthCheckResults: []marathon.HealthCheckResult{{Alive: true}}},
		{ID: "web.main.gitabc.config1.b", HealthCheckResults: []marathon.HealthCheckResult{{Alive: true}}},
		{ID: "web.main.gitabc.config1.c"},
		{ID: "web.unhealthy.gitabc.config1.a"},
	}}
	ms := &fakeMesos{tasks: []mesos.Task{{ID: "web.main.gitabc.config1.a"}}}

	a, logs := newTestAutoscaler(t, testConfig(soa), store, WithMarathon(mt), WithMesos(ms))
	require.NoError(t, a.AutoscaleServices(ctx))

	assert.Equal(t, 1, mt.calls, "tasks are listed once per pass")
	n, err := state.GetInt(ctx, store, "/autoscaling/web/main/instances")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, inst := range []string{"stopped", "custom", "static"} {
		_, err := store.Get(ctx, "/autoscaling/web/"+inst+"/instances")
		assert.ErrorIs(t, err, state.ErrNotFound, inst)
	}

	caught := logs.FilterMessageSnippet("Caught Exception").All()
	require.Len(t, caught, 1)
	assert.Equal(t, "unhealthy", caught[0].ContextMap()["instance"])
	assert.Contains(t, caught[0].Message, "Couldn't find any healthy marathon tasks")
}

func TestAutoscaleServicesLockHeld(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	held, err := store.Lock(ctx, marathon.AutoscalingLockPath, time.Second)
	require.NoError(t, err)
	defer held.Unlock()

	mt := &fakeMarathon{}
	a, _ := newTestAutoscaler(t, testConfig(t.TempDir()), store, WithMarathon(mt), WithMesos(&fakeMesos{}))

	require.NoError(t, a.AutoscaleServices(ctx))
	assert.Zero(t, mt.calls)
	assert.Equal(t, 1, a.Metrics().Get("lock_held", nil))
}

func TestAutoscaleServicesReleasesLock(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	a, _ := newTestAutoscaler(t, testConfig(t.TempDir()), store)

	require.NoError(t, a.AutoscaleServices(ctx))
	lock, err := store.Lock(ctx, marathon.AutoscalingLockPath, 0)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())
}
