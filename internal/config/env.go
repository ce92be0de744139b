package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables that override file settings.
const (
	EnvHost         = "TELESIM_HOST"
	EnvPort         = "TELESIM_PORT"
	EnvSeed         = "TELESIM_SEED"
	EnvLogLevel     = "TELESIM_LOG_LEVEL"
	EnvOTLPEndpoint = "TELESIM_OTLP_ENDPOINT"
)

// ApplyEnv overrides configuration values from TELESIM_* environment
// variables. Malformed numeric values are an error rather than ignored.
func ApplyEnv(cfg *Config) error {
	cfg.Server.Host = envStr(EnvHost, cfg.Server.Host)
	cfg.LogLevel = envStr(EnvLogLevel, cfg.LogLevel)
	cfg.Telemetry.Endpoint = envStr(EnvOTLPEndpoint, cfg.Telemetry.Endpoint)

	port, err := envInt(EnvPort, cfg.Server.Port)
	if err != nil {
		return err
	}
	cfg.Server.Port = port

	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSeed, err)
		}
		cfg.Simulation.Seed = seed
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
