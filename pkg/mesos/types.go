// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package mesos

import "fmt"

// TaskRunning is the Mesos state of a live task.
const TaskRunning = "TASK_RUNNING"

// State is the subset of the master's /master/state document we use.
type State struct {
	Slaves     []Slave     `json:"slaves"`
	Frameworks []Framework `json:"frameworks"`
}

// Slave is a registered agent.
type Slave struct {
	ID         string         `json:"id"`
	PID        string         `json:"pid"`
	Hostname   string         `json:"hostname"`
	Attributes map[string]any `json:"attributes"`
	Resources  Resources      `json:"resources"`
}

// Attribute returns the agent attribute as a string, or fallback when unset.
func (s Slave) Attribute(name, fallback string) string {
	v, ok := s.Attributes[name]
	if !ok || v == nil {
		return fallback
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Framework is a registered framework with its tasks.
type Framework struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Tasks  []Task `json:"tasks"`
}

// Task is a Mesos task. Stats is filled by RunningTasks when the agent
// reported statistics for the task's executor.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	SlaveID     string     `json:"slave_id"`
	FrameworkID string     `json:"framework_id"`
	ExecutorID  string     `json:"executor_id"`
	State       string     `json:"state"`
	Resources   Resources  `json:"resources"`
	Stats       *TaskStats `json:"-"`
}

// Resources is the scalar part of a Mesos resource set.
type Resources struct {
	CPUs float64 `json:"cpus"`
	Mem  float64 `json:"mem"`
	Disk float64 `json:"disk"`
}

// Add returns r + o.
func (r Resources) Add(o Resources) Resources {
	return Resources{CPUs: r.CPUs + o.CPUs, Mem: r.Mem + o.Mem, Disk: r.Disk + o.Disk}
}

// Sub returns r - o.
func (r Resources) Sub(o Resources) Resources {
	return Resources{CPUs: r.CPUs - o.CPUs, Mem: r.Mem - o.Mem, Disk: r.Disk - o.Disk}
}

// Named returns the resources keyed by their Mesos names.
func (r Resources) Named() map[string]float64 {
	return map[string]float64{"cpus": r.CPUs, "mem": r.Mem, "disk": r.Disk}
}

// TaskStats are the executor statistics reported by an agent.
type TaskStats struct {
	CPUsSystemTimeSecs float64 `json:"cpus_system_time_secs"`
	CPUsUserTimeSecs   float64 `json:"cpus_user_time_secs"`
	CPUsLimit          float64 `json:"cpus_limit"`
	MemRSSBytes        float64 `json:"mem_rss_bytes"`
	MemLimitBytes      float64 `json:"mem_limit_bytes"`
}

type executorStatistics struct {
	ExecutorID  string    `json:"executor_id"`
	FrameworkID string    `json:"framework_id"`
	Source      string    `json:"source"`
	Statistics  TaskStats `json:"statistics"`
}
