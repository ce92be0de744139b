// Package activity implements the per-actor activity process: a
// mean-reverting random walk modulated by time-of-day seasonality and
// periodic bursts.
package activity

import (
	"math"
	"math/rand/v2"
	"time"

	"telesim/internal/config"
	"telesim/internal/core"
	"telesim/internal/population"
)

// Theta is the mean reversion strength.
const Theta = 0.1

// Next returns the activity level after one step of length dt (seconds).
// With dt <= 0 the level is only clamped; with volatility <= 0 the step is
// the deterministic reversion alone and rng is not consumed.
func Next(level, base, volatility, dt, seasonal, burst float64, rng *rand.Rand) float64 {
	if dt <= 0 || math.IsNaN(dt) {
		return core.ClampActivity(level)
	}

	adjustedBase := base * seasonal * burst
	drift := Theta * (adjustedBase - level) * dt

	var shock float64
	if volatility > 0 {
		shock = rng.NormFloat64() * volatility * math.Sqrt(dt)
	}

	return core.ClampActivity(level + drift + shock)
}

// Update advances a single actor in place and returns its new level.
func Update(a *population.Actor, dt, seasonal, burst float64, rng *rand.Rand) float64 {
	a.ActivityLevel = Next(a.ActivityLevel, a.BaseActivity, a.Volatility, dt, seasonal, burst, rng)
	return a.ActivityLevel
}

// SeasonalFactor weights activity by hour of day and weekday: business
// hours 2.0, daytime 1.5, night 0.3, times 0.3 at weekends.
func SeasonalFactor(t time.Time) float64 {
	hour := t.Hour()

	var hours float64
	switch {
	case hour >= 9 && hour <= 17:
		hours = 2.0
	case hour >= 6 && hour <= 22:
		hours = 1.5
	default:
		hours = 0.3
	}

	weekend := 1.0
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekend = 0.3
	}
	return hours * weekend
}

// BurstFactor returns the configured intensity while elapsed falls in the
// first Duration seconds of each Interval-long cycle, else 1.0.
func BurstFactor(elapsed float64, cfg config.BurstConfig) float64 {
	if !cfg.Enabled || cfg.Interval <= 0 {
		return 1.0
	}
	cyclePos := math.Mod(elapsed, cfg.Interval)
	if cyclePos < 0 {
		cyclePos += cfg.Interval
	}
	if cyclePos < cfg.Duration {
		return cfg.Intensity
	}
	return 1.0
}
