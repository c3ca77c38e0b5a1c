// Package observability tests
package observability

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCounter(t *testing.T) {
	m := NewMetrics()
	labels := map[string]string{"kind": "service"}

	m.Inc("decisions", labels)
	m.Inc("decisions", labels)
	if val := m.Get("decisions", labels); val != 2 {
		t.Errorf("Expected counter value 2, got %d", val)
	}
}

func TestCounterKeyIsOrderIndependent(t *testing.T) {
	a := counterKey("decisions", map[string]string{"kind": "service", "direction": "up"})
	b := counterKey("decisions", map[string]string{"direction": "up", "kind": "service"})
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a != "decisions.direction:up.kind:service" {
		t.Errorf("unexpected key %q", a)
	}
}

func TestRecordDecisionAndSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision("service", "up")
	m.RecordDecision("service", "steady")
	m.RecordError("cluster")

	snap := m.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Expected 3 counters, got %d: %v", len(snap), snap)
	}
	if snap["errors.kind:cluster"] != 1 {
		t.Errorf("Expected one cluster error, got %v", snap)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDecision("service", "up")
}

func TestLogEventLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	LogEvent(log, Event{Service: "web", Cluster: "norcal", Instance: "main", Line: "Scaling from 2 to 3 instances"})
	LogEvent(log, Event{Service: "web", Cluster: "norcal", Instance: "main", Level: LevelDebug, Line: "Staying at 3 instances"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.DebugLevel {
		t.Errorf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != ComponentDeploy || ctx["service"] != "web" {
		t.Errorf("unexpected fields: %v", ctx)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
