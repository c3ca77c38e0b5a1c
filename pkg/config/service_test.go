package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paasta-tools/paasta/pkg/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadInstanceConfigs(t *testing.T) {
	soa := t.TempDir()
	writeFile(t, filepath.Join(soa, "web", "marathon-norcal.yaml"), `
_template: &tmpl
  min_instances: 2
main:
  <<: *tmpl
  max_instances: 10
  autoscaling:
    decision_policy: threshold
    setpoint: 0.5
canary:
  instances: 1
`)
	writeFile(t, filepath.Join(soa, "web", "deployments.json"), `{
  "v2": {
    "deployments": {},
    "controls": {
      "web:norcal.canary": {"desired_state": "stop", "force_bounce": null}
    }
  }
}`)
	writeFile(t, filepath.Join(soa, "api", "marathon-norcal.yaml"), "main:\n  instances: 3\n")
	writeFile(t, filepath.Join(soa, "batch", "marathon-other.yaml"), "main: {}\n")

	configs, err := config.LoadInstanceConfigs(soa, "norcal")
	if err != nil {
		t.Fatalf("LoadInstanceConfigs() failed: %v", err)
	}

	if len(configs) != 3 {
		t.Fatalf("Expected 3 instances, got %d", len(configs))
	}

	got := make([]string, 0, len(configs))
	for _, c := range configs {
		got = append(got, c.Service+"."+c.Instance)
	}
	want := []string{"api.main", "web.canary", "web.main"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instance %d = %s, want %s", i, got[i], want[i])
		}
	}

	webMain := configs[2]
	if max, ok := webMain.MaxInstanceCount(); !ok || max != 10 {
		t.Errorf("Expected max_instances 10, got %d (%v)", max, ok)
	}
	if webMain.MinInstanceCount() != 2 {
		t.Errorf("Expected min_instances from template, got %d", webMain.MinInstanceCount())
	}
	if webMain.DecisionPolicy() != "threshold" {
		t.Errorf("Expected threshold policy, got %q", webMain.DecisionPolicy())
	}
	if webMain.DesiredState != config.DesiredStateStart {
		t.Errorf("Expected start, got %q", webMain.DesiredState)
	}
	if configs[1].DesiredState != config.DesiredStateStop {
		t.Errorf("Expected canary stopped, got %q", configs[1].DesiredState)
	}
	if configs[0].ConfiguredInstances() != 3 {
		t.Errorf("Expected 3 configured instances, got %d", configs[0].ConfiguredInstances())
	}
}

func TestLoadServiceConfigsV1Deployments(t *testing.T) {
	soa := t.TempDir()
	writeFile(t, filepath.Join(soa, "web", "marathon-norcal.yaml"), "main: {}\ncanary: {}\nbatch: {}\n")
	writeFile(t, filepath.Join(soa, "web", "deployments.json"), `{
  "v1": {
    "web:paasta-norcal.canary": {"docker_image": "web:abc", "desired_state": "stop", "force_bounce": null},
    "web:norcal.batch": {"docker_image": "web:abc", "desired_state": "stop", "force_bounce": null},
    "web:paasta-norcal.main": {"docker_image": "web:abc", "desired_state": "stop", "force_bounce": null}
  },
  "v2": {
    "deployments": {},
    "controls": {
      "web:norcal.main": {"desired_state": "start", "force_bounce": null}
    }
  }
}`)

	configs, err := config.LoadServiceConfigs(soa, "web", "norcal")
	if err != nil {
		t.Fatalf("LoadServiceConfigs() failed: %v", err)
	}

	got := map[string]string{}
	for _, c := range configs {
		got[c.Instance] = c.DesiredState
	}
	want := map[string]string{
		"batch":  config.DesiredStateStop,
		"canary": config.DesiredStateStop,
		"main":   config.DesiredStateStart,
	}
	for name, state := range want {
		if got[name] != state {
			t.Errorf("%s desired state = %q, want %q", name, got[name], state)
		}
	}
}

func TestLoadServiceConfigsBadYAML(t *testing.T) {
	soa := t.TempDir()
	writeFile(t, filepath.Join(soa, "web", "marathon-norcal.yaml"), "main: [unclosed\n")

	if _, err := config.LoadServiceConfigs(soa, "web", "norcal"); err == nil {
		t.Error("Expected error for malformed yaml")
	}
}

func TestAutoscalingParamsDefaults(t *testing.T) {
	ic := &config.InstanceConfig{Autoscaling: map[string]any{"metrics_provider": "http", "endpoint": "/health"}}
	params := ic.AutoscalingParams()

	if params[config.ParamMetricsProvider] != "http" {
		t.Errorf("Expected override, got %v", params[config.ParamMetricsProvider])
	}
	if params[config.ParamDecisionPolicy] != "pid" {
		t.Errorf("Expected default pid, got %v", params[config.ParamDecisionPolicy])
	}
	if params[config.ParamSetpoint] != 0.8 {
		t.Errorf("Expected default setpoint, got %v", params[config.ParamSetpoint])
	}

	delete(params, config.ParamMetricsProvider)
	if ic.AutoscalingParams()[config.ParamMetricsProvider] != "http" {
		t.Error("AutoscalingParams must return a copy")
	}
}

func TestLimitInstanceCount(t *testing.T) {
	min, max := 2, 5
	autoscaled := &config.InstanceConfig{MinInstances: &min, MaxInstances: &max}
	static := &config.InstanceConfig{}

	tests := []struct {
		in, want int
	}{
		{0, 2},
		{3, 3},
		{9, 5},
	}
	for _, tt := range tests {
		if got := autoscaled.LimitInstanceCount(tt.in); got != tt.want {
			t.Errorf("LimitInstanceCount(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := static.LimitInstanceCount(42); got != 42 {
		t.Errorf("static instances must not be clamped, got %d", got)
	}
}
