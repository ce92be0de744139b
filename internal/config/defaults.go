package config

import "time"

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := scalarDefaults()
	cfg.Users = UsersConfig{
		Total: 50,
		Distribution: map[string]TypeConfig{
			"power":   {Percentage: 0.2, ActivityRange: []float64{2.0, 4.0}, Volatility: 0.3},
			"regular": {Percentage: 0.6, ActivityRange: []float64{0.8, 2.0}, Volatility: 0.2},
			"idle":    {Percentage: 0.2, ActivityRange: []float64{0.1, 0.5}, Volatility: 0.1},
		},
	}
	cfg.ModelDistribution = map[string]map[string]float64{
		"power":   {"claude-opus-4": 0.5, "claude-sonnet-4": 0.4, "claude-3-5-haiku": 0.1},
		"regular": {"claude-opus-4": 0.1, "claude-sonnet-4": 0.7, "claude-3-5-haiku": 0.2},
		"idle":    {"claude-sonnet-4": 0.4, "claude-3-5-haiku": 0.6},
	}
	cfg.Costs = map[string]Pricing{
		"claude-opus-4":    {Input: 0.015, Output: 0.075},
		"claude-sonnet-4":  {Input: 0.003, Output: 0.015},
		"claude-3-5-haiku": {Input: 0.0008, Output: 0.004},
	}
	cfg.Scenarios = map[string]ScenarioConfig{
		"baseline": {
			Name:        "baseline",
			Description: "Steady usage with no scripted events",
			Duration:    3600,
		},
		"high_load": {
			Name:        "high_load",
			Description: "Load doubles after five minutes and recovers at twenty",
			Duration:    "30m",
			Timeline: []EventConfig{
				{Time: "5m", Event: "increase_load", Multiplier: float64Ptr(2.0)},
				{Time: "20m", Event: "recovery"},
			},
		},
		"model_outage": {
			Name:        "model_outage",
			Description: "A model outage hits thirty percent of users",
			Duration:    "45m",
			Timeline: []EventConfig{
				{Time: "10m", Event: "inject_failure", Type: "model_outage", AffectedPercentage: float64Ptr(30)},
				{Time: "25m", Event: "recovery"},
			},
		},
		"burst": {
			Name:        "burst",
			Description: "Short bursts of load",
			Duration:    "20m",
			Timeline: []EventConfig{
				{Time: "2m", Event: "burst_load", Multiplier: float64Ptr(5.0), Duration: "5m"},
			},
		},
	}
	return cfg
}

// scalarDefaults returns the built-in scalar settings without population,
// models or scenarios.
func scalarDefaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 8000},
		Simulation: SimulationConfig{
			TickInterval:       100 * time.Millisecond,
			ActivityMultiplier: 1.0,
			FailureRate:        0.01,
		},
		Burst:     BurstConfig{Interval: 3600, Duration: 300, Intensity: 3.0},
		Telemetry: TelemetryConfig{Protocol: "grpc", PushInterval: 30 * time.Second},
		LogLevel:  "info",
	}
}

func float64Ptr(v float64) *float64 { return &v }
