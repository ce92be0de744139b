package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telesim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "telesim version "+version+"\n" {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestValidate_Defaults(t *testing.T) {
	out, err := execute(t, "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := "config OK: 50 users, 3 models, 4 scenarios\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestValidate_BadTimeline(t *testing.T) {
	path := writeConfig(t, `
users:
  total: 4
  distribution:
    regular: {percentage: 1.0, activity_range: [0.5, 1.5], volatility: 0.2}
model_distribution:
  regular: {m1: 1}
costs_per_1k_tokens:
  m1: {input: 0.001, output: 0.002}
scenarios:
  broken:
    name: broken
    duration: 10m
    timeline:
      - {time: soon, event: recovery}
`)
	if _, err := execute(t, "validate", "--config", path); err == nil {
		t.Fatal("expected error for malformed timeline time")
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("err = %v, want reading config file error", err)
	}
}

func TestScenarios_Text(t *testing.T) {
	out, err := execute(t, "scenarios")
	if err != nil {
		t.Fatalf("scenarios: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want header + 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "baseline") {
		t.Errorf("first scenario line = %q", lines[1])
	}
}

func TestScenarios_JSON(t *testing.T) {
	out, err := execute(t, "scenarios", "--json")
	if err != nil {
		t.Fatalf("scenarios --json: %v", err)
	}
	var infos []scenarioInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	byName := map[string]scenarioInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	if got := byName["high_load"]; got.DurationSeconds != 1800 || got.Events != 2 {
		t.Errorf("high_load = %+v, want 1800s with 2 events", got)
	}
	if got := byName["baseline"]; got.DurationSeconds != 3600 || got.Events != 0 {
		t.Errorf("baseline = %+v, want 3600s with no events", got)
	}
}

func TestRun_RejectsBadFlags(t *testing.T) {
	if _, err := execute(t, "run", "--log-format", "xml"); err == nil {
		t.Error("expected error for unknown log format")
	}
	if _, err := execute(t, "run", "--duration", "soon"); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestRun_UnknownScenarioListsAvailable(t *testing.T) {
	_, err := execute(t, "run", "--quiet", "--scenario", "nope")
	if err == nil {
		t.Fatal("expected error for unknown scenario")
	}
	if !strings.Contains(err.Error(), "available: baseline, burst, high_load, model_outage") {
		t.Errorf("error should list configured scenarios, got %v", err)
	}
}
