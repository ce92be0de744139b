// Package config handles YAML configuration parsing and validation.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"telesim/internal/core"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server            ServerConfig                  `yaml:"server" json:"server"`
	Simulation        SimulationConfig              `yaml:"simulation" json:"simulation"`
	Users             UsersConfig                   `yaml:"users" json:"users"`
	ModelDistribution map[string]map[string]float64 `yaml:"model_distribution" json:"model_distribution"`
	Costs             map[string]Pricing            `yaml:"costs_per_1k_tokens" json:"costs_per_1k_tokens"`
	Burst             BurstConfig                   `yaml:"burst" json:"burst"`
	Scenarios         map[string]ScenarioConfig     `yaml:"scenarios" json:"scenarios"`
	Telemetry         TelemetryConfig               `yaml:"telemetry" json:"telemetry"`
	LogLevel          string                        `yaml:"log_level" json:"log_level"`
}

// ServerConfig controls the HTTP serving interface.
type ServerConfig struct {
	Host           string  `yaml:"host" json:"host"`
	Port           int     `yaml:"port" json:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`     // 0 = unlimited
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst"` // defaults to ceil(rps)
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SimulationConfig holds engine-wide tunables.
type SimulationConfig struct {
	Seed               int64         `yaml:"seed" json:"seed"` // 0 = derive from time
	TickInterval       time.Duration `yaml:"tick_interval" json:"tick_interval"`
	ActivityMultiplier float64       `yaml:"activity_multiplier" json:"activity_multiplier"`
	FailureRate        float64       `yaml:"failure_rate" json:"failure_rate"`
	BaseErrorRate      *float64      `yaml:"base_error_rate,omitempty" json:"base_error_rate,omitempty"`
}

// ErrorRate returns the per-session error probability before the failed
// session boost. Unset means ten times the failure rate.
func (s SimulationConfig) ErrorRate() float64 {
	if s.BaseErrorRate != nil {
		return *s.BaseErrorRate
	}
	return s.FailureRate * 10
}

// UsersConfig describes the simulated population.
type UsersConfig struct {
	Total           int                   `yaml:"total" json:"total"`
	FallbackRegular bool                  `yaml:"fallback_regular" json:"fallback_regular"`
	Distribution    map[string]TypeConfig `yaml:"distribution" json:"distribution"`
}

// TypeConfig describes one actor type of the population.
type TypeConfig struct {
	Percentage    float64   `yaml:"percentage" json:"percentage"`
	ActivityRange []float64 `yaml:"activity_range" json:"activity_range"`
	Volatility    float64   `yaml:"volatility" json:"volatility"`
}

// Pricing is the per-1K-token price of a model in USD.
type Pricing struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// BurstConfig drives the periodic burst factor. Values are seconds.
type BurstConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Interval  float64 `yaml:"interval" json:"interval"`
	Duration  float64 `yaml:"duration" json:"duration"`
	Intensity float64 `yaml:"intensity" json:"intensity"`
}

// ScenarioConfig is a named, scripted run.
// Duration and timeline times accept numbers (seconds) or strings with an
// s/m/h suffix; they are parsed when the scenario is compiled.
type ScenarioConfig struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Duration    any           `yaml:"duration" json:"duration"`
	Timeline    []EventConfig `yaml:"timeline" json:"timeline"`
}

// EventConfig is one raw timeline entry.
type EventConfig struct {
	Time               any      `yaml:"time" json:"time"`
	Event              string   `yaml:"event" json:"event"`
	Multiplier         *float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	Type               string   `yaml:"type,omitempty" json:"type,omitempty"`
	AffectedPercentage *float64 `yaml:"affected_percentage,omitempty" json:"affected_percentage,omitempty"`
	Duration           any      `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// TelemetryConfig enables OTLP push of the simulated metrics.
type TelemetryConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint"` // empty = disabled
	Protocol     string        `yaml:"protocol" json:"protocol"` // "grpc" or "http"
	Insecure     bool          `yaml:"insecure" json:"insecure"`
	PushInterval time.Duration `yaml:"push_interval" json:"push_interval"`
}

// LoadConfig reads, defaults, overrides from the environment and validates a
// YAML configuration file. An empty path yields the built-in configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		// Decode over the scalar defaults so keys the file leaves out keep
		// them while explicit zeros survive.
		cfg = scalarDefaults()
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills settings for which zero is never meaningful. Maps are
// never merged with the built-in configuration so a file fully owns its
// population and scenarios.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = int(math.Ceil(c.Server.RateLimitRPS))
	}
	if c.Simulation.TickInterval <= 0 {
		c.Simulation.TickInterval = 100 * time.Millisecond
	}
	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = "grpc"
	}
	if c.Telemetry.PushInterval <= 0 {
		c.Telemetry.PushInterval = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for key, sc := range c.Scenarios {
		if sc.Name == "" {
			sc.Name = key
			c.Scenarios[key] = sc
		}
	}
}

// distributionTolerance is how far type percentages may drift from 1.0.
const distributionTolerance = 1e-6

// Validate checks the configuration for errors that must stop the simulator
// from starting. Scenario timelines are validated when compiled.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("config: server.rate_limit_rps must not be negative")
	}

	sim := c.Simulation
	if sim.ActivityMultiplier <= 0 {
		return fmt.Errorf("config: simulation.activity_multiplier must be positive")
	}
	if sim.FailureRate < 0 || sim.FailureRate > 1 {
		return fmt.Errorf("config: simulation.failure_rate must be within [0, 1]")
	}
	if sim.BaseErrorRate != nil && (*sim.BaseErrorRate < 0 || *sim.BaseErrorRate > 1) {
		return fmt.Errorf("config: simulation.base_error_rate must be within [0, 1]")
	}

	if err := c.validateUsers(); err != nil {
		return err
	}
	if err := c.validateModels(); err != nil {
		return err
	}

	if c.Burst.Enabled {
		if c.Burst.Interval <= 0 || c.Burst.Duration < 0 || c.Burst.Intensity <= 0 {
			return fmt.Errorf("config: burst interval and intensity must be positive")
		}
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("config: telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	return nil
}

func (c *Config) validateUsers() error {
	u := c.Users
	if u.Total <= 0 {
		return fmt.Errorf("config: users.total must be positive")
	}
	if len(u.Distribution) == 0 {
		return fmt.Errorf("config: users.distribution is empty: %w", core.ErrDistribution)
	}

	var sum float64
	for name, tc := range u.Distribution {
		if _, err := core.ParseActorType(name); err != nil {
			return fmt.Errorf("config: users.distribution: %w", err)
		}
		if tc.Percentage < 0 || tc.Percentage > 1 {
			return fmt.Errorf("config: users.distribution.%s.percentage must be within [0, 1]", name)
		}
		if len(tc.ActivityRange) != 2 {
			return fmt.Errorf("config: users.distribution.%s.activity_range needs exactly two values", name)
		}
		lo, hi := tc.ActivityRange[0], tc.ActivityRange[1]
		if lo > hi || lo < core.MinActivity || hi > core.MaxActivity {
			return fmt.Errorf("config: users.distribution.%s.activity_range [%v, %v] invalid", name, lo, hi)
		}
		if tc.Volatility < 0 {
			return fmt.Errorf("config: users.distribution.%s.volatility must not be negative", name)
		}
		sum += tc.Percentage
	}

	switch {
	case math.Abs(sum-1.0) <= distributionTolerance:
	case sum < 1.0 && u.FallbackRegular:
		if _, ok := u.Distribution[string(core.Regular)]; !ok {
			return fmt.Errorf("config: users.fallback_regular requires a regular type: %w", core.ErrDistribution)
		}
	default:
		return fmt.Errorf("config: type percentages sum to %.4f, expected 1.0: %w", sum, core.ErrDistribution)
	}
	return nil
}

func (c *Config) validateModels() error {
	for model, p := range c.Costs {
		if p.Input < 0 || p.Output < 0 {
			return fmt.Errorf("config: costs_per_1k_tokens.%s must not be negative", model)
		}
	}
	for name := range c.Users.Distribution {
		weights, ok := c.ModelDistribution[name]
		if !ok || len(weights) == 0 {
			return fmt.Errorf("config: model_distribution.%s is missing", name)
		}
		var total float64
		for model, w := range weights {
			if w < 0 {
				return fmt.Errorf("config: model_distribution.%s.%s weight must not be negative", name, model)
			}
			if _, priced := c.Costs[model]; !priced {
				return fmt.Errorf("config: model %q has no costs_per_1k_tokens entry", model)
			}
			total += w
		}
		if total <= 0 {
			return fmt.Errorf("config: model_distribution.%s weights sum to zero", name)
		}
	}
	return nil
}

// ScenarioNames returns configured scenario keys in sorted order.
func (c *Config) ScenarioNames() []string {
	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns every priced model name in sorted order.
func (c *Config) Models() []string {
	models := make([]string, 0, len(c.Costs))
	for m := range c.Costs {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
