// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package mesos

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlaveIP(t *testing.T) {
	ip, err := SlaveIP("slave(1)@10.40.1.17:5051")
	require.NoError(t, err)
	assert.Equal(t, "10.40.1.17", ip)

	_, err = SlaveIP("nonsense")
	assert.Error(t, err)
}

func TestSlaveAttribute(t *testing.T) {
	s := Slave{Attributes: map[string]any{"pool": "batch", "rack": 3.0}}
	assert.Equal(t, "batch", s.Attribute("pool", "default"))
	assert.Equal(t, "3", s.Attribute("rack", ""))
	assert.Equal(t, "default", Slave{}.Attribute("pool", "default"))
}

// newAgentServer serves statistics for the given executor ids.
func newAgentServer(t *testing.T, executors ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/monitor/statistics.json" {
			http.NotFound(w, r)
			return
		}
		parts := make([]string, 0, len(executors))
		for _, e := range executors {
			parts = append(parts, fmt.Sprintf(`{"executor_id": %q, "statistics": {
				"cpus_system_time_secs": 1.5, "cpus_user_time_secs": 2.5, "cpus_limit": 1.1,
				"mem_rss_bytes": 100, "mem_limit_bytes": 200}}`, e))
		}
		w.Write([]byte("[" + strings.Join(parts, ",") + "]"))
	}))
}

func pidFor(serverURL string) string {
	return "slave(1)@" + strings.TrimPrefix(serverURL, "http://")
}

func TestStateAndRunningTasks(t *testing.T) {
	agent := newAgentServer(t, "web.main.1")
	defer agent.Close()

	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/master/state" {
			t.Errorf("Expected /master/state, got %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{
			"slaves": [
				{"id": "s1", "pid": %q, "hostname": "agent1", "attributes": {"pool": "default"},
				 "resources": {"cpus": 4, "mem": 1024, "disk": 100, "ports": "[31000-32000]"}},
				{"id": "s2", "pid": "slave(1)@127.0.0.1:1", "hostname": "agent2", "attributes": {},
				 "resources": {"cpus": 2, "mem": 512, "disk": 50}}
			],
			"frameworks": [
				{"id": "marathon", "active": true, "tasks": [
					{"id": "web.main.1", "slave_id": "s1", "state": "TASK_RUNNING", "resources": {"cpus": 1, "mem": 128}},
					{"id": "web.main.2", "slave_id": "s1", "state": "TASK_STAGING", "resources": {"cpus": 1, "mem": 128}},
					{"id": "web.main.3", "slave_id": "s2", "state": "TASK_RUNNING", "resources": {"cpus": 1, "mem": 128}}
				]},
				{"id": "old", "active": false, "tasks": [
					{"id": "old.1", "slave_id": "s1", "state": "TASK_RUNNING"}
				]}
			]
		}`, pidFor(agent.URL))
	}))
	defer master.Close()

	client, err := NewClient(master.URL, time.Second, 2, nil)
	require.NoError(t, err)

	st, err := client.State(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Slaves, 2)
	assert.Equal(t, Resources{CPUs: 4, Mem: 1024, Disk: 100}, st.Slaves[0].Resources)

	tasks, err := client.RunningTasks(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "web.main.1", tasks[0].ID)
	want := &TaskStats{CPUsSystemTimeSecs: 1.5, CPUsUserTimeSecs: 2.5, CPUsLimit: 1.1, MemRSSBytes: 100, MemLimitBytes: 200}
	if diff := cmp.Diff(want, tasks[0].Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	// s2 is unreachable: the task is kept without statistics.
	assert.Equal(t, "web.main.3", tasks[1].ID)
	assert.Nil(t, tasks[1].Stats)
}

func TestStateFailure(t *testing.T) {
	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer master.Close()

	client, err := NewClient(master.URL, time.Second, 1, nil)
	require.NoError(t, err)
	_, err = client.State(context.Background())
	assert.Error(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:5050", time.Second, 1, nil)
	assert.Error(t, err)
}

func TestUtilizationForAttribute(t *testing.T) {
	slaves := []Slave{
		{ID: "a", Attributes: map[string]any{"pool": "default"}, Resources: Resources{CPUs: 4, Mem: 100, Disk: 10}},
		{ID: "b", Resources: Resources{CPUs: 4, Mem: 100, Disk: 10}},
		{ID: "c", Attributes: map[string]any{"pool": "batch"}, Resources: Resources{CPUs: 8, Mem: 50, Disk: 5}},
	}
	tasks := []Task{
		{SlaveID: "a", Resources: Resources{CPUs: 1, Mem: 20}},
		{SlaveID: "b", Resources: Resources{CPUs: 2, Mem: 30, Disk: 5}},
		{SlaveID: "c", Resources: Resources{CPUs: 8}},
		{SlaveID: "gone", Resources: Resources{CPUs: 100}},
	}

	got := UtilizationForAttribute(slaves, tasks, "pool", "default")
	want := AttributeUtilization{
		Total: map[string]Resources{
			"default": {CPUs: 8, Mem: 200, Disk: 20},
			"batch":   {CPUs: 8, Mem: 50, Disk: 5},
		},
		Free: map[string]Resources{
			"default": {CPUs: 5, Mem: 150, Disk: 15},
			"batch":   {CPUs: 0, Mem: 50, Disk: 5},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("utilization mismatch (-want +got):\n%s", diff)
	}
}
