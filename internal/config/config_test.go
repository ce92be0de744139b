package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"telesim/internal/core"
)

const validConfig = `
server:
  host: 0.0.0.0
  port: 9100
simulation:
  seed: 42
  tick_interval: 50ms
  failure_rate: 0.05
users:
  total: 20
  distribution:
    power:
      percentage: 0.25
      activity_range: [2.0, 4.0]
      volatility: 0.3
    regular:
      percentage: 0.5
      activity_range: [0.8, 2.0]
      volatility: 0.2
    idle:
      percentage: 0.25
      activity_range: [0.1, 0.5]
      volatility: 0.1
model_distribution:
  power: {opus: 0.7, sonnet: 0.3}
  regular: {sonnet: 1.0}
  idle: {haiku: 1.0}
costs_per_1k_tokens:
  opus: {input: 0.015, output: 0.075}
  sonnet: {input: 0.003, output: 0.015}
  haiku: {input: 0.0008, output: 0.004}
scenarios:
  spike:
    duration: 10m
    timeline:
      - time: 1m
        event: increase_load
        multiplier: 3.0
      - time: 90
        event: recovery
`

func TestLoadConfig_Valid(t *testing.T) {
	cfg := loadConfigFromString(t, validConfig)

	if cfg.Server.Addr() != "0.0.0.0:9100" {
		t.Errorf("expected addr 0.0.0.0:9100, got %q", cfg.Server.Addr())
	}
	if cfg.Simulation.Seed != 42 {
		t.Errorf("expected seed 42, got %d", cfg.Simulation.Seed)
	}
	if cfg.Simulation.TickInterval != 50*time.Millisecond {
		t.Errorf("expected tick interval 50ms, got %v", cfg.Simulation.TickInterval)
	}
	if cfg.Users.Total != 20 {
		t.Errorf("expected 20 users, got %d", cfg.Users.Total)
	}
	if got := cfg.Users.Distribution["power"].ActivityRange; len(got) != 2 || got[0] != 2.0 || got[1] != 4.0 {
		t.Errorf("expected power range [2 4], got %v", got)
	}

	sc, ok := cfg.Scenarios["spike"]
	if !ok {
		t.Fatal("expected scenario 'spike'")
	}
	if sc.Name != "spike" {
		t.Errorf("expected scenario name defaulted to key, got %q", sc.Name)
	}
	if len(sc.Timeline) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(sc.Timeline))
	}
	if sc.Timeline[0].Time != "1m" {
		t.Errorf("expected raw time '1m', got %v", sc.Timeline[0].Time)
	}
	if sc.Timeline[1].Time != 90 {
		t.Errorf("expected raw time 90, got %v (%T)", sc.Timeline[1].Time, sc.Timeline[1].Time)
	}
	if sc.Timeline[0].Multiplier == nil || *sc.Timeline[0].Multiplier != 3.0 {
		t.Errorf("expected multiplier 3.0, got %v", sc.Timeline[0].Multiplier)
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg := loadConfigFromString(t, validConfig)

	if cfg.Simulation.ActivityMultiplier != 1.0 {
		t.Errorf("expected activity multiplier 1.0, got %v", cfg.Simulation.ActivityMultiplier)
	}
	if cfg.Burst.Interval != 3600 || cfg.Burst.Duration != 300 || cfg.Burst.Intensity != 3.0 {
		t.Errorf("unexpected burst defaults: %+v", cfg.Burst)
	}
	if cfg.Telemetry.Protocol != "grpc" {
		t.Errorf("expected telemetry protocol grpc, got %q", cfg.Telemetry.Protocol)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadConfig_ExplicitZerosSurvive(t *testing.T) {
	content := strings.Replace(validConfig, "failure_rate: 0.05", "failure_rate: 0", 1) + `
burst:
  enabled: true
  interval: 600
  duration: 0
  intensity: 2
`
	cfg := loadConfigFromString(t, content)

	if cfg.Simulation.FailureRate != 0 {
		t.Errorf("expected failure rate 0, got %v", cfg.Simulation.FailureRate)
	}
	if cfg.Burst.Interval != 600 || cfg.Burst.Duration != 0 || cfg.Burst.Intensity != 2 {
		t.Errorf("expected burst {600 0 2}, got %+v", cfg.Burst)
	}
	if cfg.Simulation.ActivityMultiplier != 1.0 {
		t.Errorf("expected absent activity multiplier to default to 1.0, got %v", cfg.Simulation.ActivityMultiplier)
	}
}

func TestLoadConfig_ZeroMultiplierIsRejected(t *testing.T) {
	content := strings.Replace(validConfig, "failure_rate: 0.05", "failure_rate: 0.05\n  activity_multiplier: 0", 1)
	tmpFile := createTempFile(t, content)

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Fatal("expected validation error for zero activity multiplier")
	}
	if !strings.Contains(err.Error(), "activity_multiplier") {
		t.Errorf("expected activity_multiplier error, got %v", err)
	}
}

func TestLoadConfig_EmptyPathUsesDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Users.Total != 50 {
		t.Errorf("expected 50 default users, got %d", cfg.Users.Total)
	}
	for _, name := range []string{"baseline", "high_load", "model_outage", "burst"} {
		if _, ok := cfg.Scenarios[name]; !ok {
			t.Errorf("expected default scenario %q", name)
		}
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	content := `
users:
  total: "Invalid
  distribution: [[[invalid
`
	tmpFile := createTempFile(t, content)

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfig_EmptyFileIsInvalid(t *testing.T) {
	tmpFile := createTempFile(t, "")

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	if !strings.Contains(err.Error(), "users.total") {
		t.Errorf("expected users.total error, got %v", err)
	}
}

func TestValidate_PercentagesMustCoverUnitInterval(t *testing.T) {
	cfg := Default()
	tc := cfg.Users.Distribution["idle"]
	tc.Percentage = 0.1
	cfg.Users.Distribution["idle"] = tc

	err := cfg.Validate()
	if !errors.Is(err, core.ErrDistribution) {
		t.Fatalf("expected ErrDistribution, got %v", err)
	}
}

func TestValidate_FallbackRegularAllowsResidual(t *testing.T) {
	cfg := Default()
	tc := cfg.Users.Distribution["idle"]
	tc.Percentage = 0.1
	cfg.Users.Distribution["idle"] = tc
	cfg.Users.FallbackRegular = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected residual to be accepted with fallback_regular, got %v", err)
	}
}

func TestValidate_PercentagesAboveOne(t *testing.T) {
	cfg := Default()
	cfg.Users.FallbackRegular = true
	tc := cfg.Users.Distribution["idle"]
	tc.Percentage = 0.5
	cfg.Users.Distribution["idle"] = tc

	if err := cfg.Validate(); !errors.Is(err, core.ErrDistribution) {
		t.Errorf("expected ErrDistribution for sum > 1, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown actor type", func(c *Config) {
			c.Users.Distribution["casual"] = TypeConfig{ActivityRange: []float64{1, 2}}
		}, "unknown actor type"},
		{"bad range", func(c *Config) {
			tc := c.Users.Distribution["power"]
			tc.ActivityRange = []float64{4, 2}
			c.Users.Distribution["power"] = tc
		}, "activity_range"},
		{"range length", func(c *Config) {
			tc := c.Users.Distribution["power"]
			tc.ActivityRange = []float64{2}
			c.Users.Distribution["power"] = tc
		}, "exactly two values"},
		{"negative volatility", func(c *Config) {
			tc := c.Users.Distribution["power"]
			tc.Volatility = -1
			c.Users.Distribution["power"] = tc
		}, "volatility"},
		{"missing model distribution", func(c *Config) {
			delete(c.ModelDistribution, "idle")
		}, "model_distribution.idle"},
		{"unpriced model", func(c *Config) {
			c.ModelDistribution["idle"]["mystery"] = 1
		}, "mystery"},
		{"failure rate", func(c *Config) {
			c.Simulation.FailureRate = 1.5
		}, "failure_rate"},
		{"port", func(c *Config) {
			c.Server.Port = 70000
		}, "server.port"},
		{"telemetry protocol", func(c *Config) {
			c.Telemetry.Protocol = "udp"
		}, "telemetry.protocol"},
		{"burst", func(c *Config) {
			c.Burst.Enabled = true
			c.Burst.Interval = 0
		}, "burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvHost, "127.0.0.1")
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvSeed, "7")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvOTLPEndpoint, "collector:4317")

	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9999" {
		t.Errorf("expected 127.0.0.1:9999, got %q", cfg.Server.Addr())
	}
	if cfg.Simulation.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Simulation.Seed)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("expected endpoint collector:4317, got %q", cfg.Telemetry.Endpoint)
	}
}

func TestApplyEnv_MalformedPort(t *testing.T) {
	t.Setenv(EnvPort, "eighty")

	if err := ApplyEnv(Default()); err == nil {
		t.Error("expected error for malformed port")
	}
}

func TestSimulationConfig_ErrorRate(t *testing.T) {
	s := SimulationConfig{FailureRate: 0.02}
	if got := s.ErrorRate(); got != 0.2 {
		t.Errorf("expected default error rate 0.2, got %v", got)
	}
	rate := 0.05
	s.BaseErrorRate = &rate
	if got := s.ErrorRate(); got != 0.05 {
		t.Errorf("expected explicit error rate 0.05, got %v", got)
	}
}

func TestConfig_SortedNames(t *testing.T) {
	cfg := Default()
	names := cfg.ScenarioNames()
	expected := []string{"baseline", "burst", "high_load", "model_outage"}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, names)
	}
	models := cfg.Models()
	if len(models) != 3 || models[0] != "claude-3-5-haiku" {
		t.Errorf("unexpected models %v", models)
	}
}

// Helper functions

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	tmpFile := createTempFile(t, content)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}
