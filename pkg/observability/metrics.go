// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observability

import (
	"sort"
	"strings"
	"sync"
)

// Metrics collects counters for a single autoscaling run.
// The process is short lived, so counters are reported through the logger
// at the end of a run rather than scraped.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int)}
}

// Inc increments the named counter. Labels are folded into the key in
// sorted order.
func (m *Metrics) Inc(name string, labels map[string]string) {
	if m == nil {
		return
	}
	key := counterKey(name, labels)
	m.mu.Lock()
	m.counters[key]++
	m.mu.Unlock()
}

// RecordDecision records the outcome of one instance or resource decision.
// direction is "up", "down" or "steady".
func (m *Metrics) RecordDecision(kind, direction string) {
	m.Inc("decisions", map[string]string{"kind": kind, "direction": direction})
}

// RecordError records a failed decision.
func (m *Metrics) RecordError(kind string) {
	m.Inc("errors", map[string]string{"kind": kind})
}

// Get returns the current value of a counter.
func (m *Metrics) Get(name string, labels map[string]string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[counterKey(name, labels)]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// Report logs every counter at info level.
func (m *Metrics) Report(log Logger) {
	snap := m.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Int(k, snap[k]))
	}
	log.Info("run summary", fields...)
}

func counterKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(".")
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(labels[k])
	}
	return b.String()
}
