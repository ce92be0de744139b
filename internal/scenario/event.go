package scenario

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"telesim/internal/config"
	"telesim/internal/core"
	"telesim/internal/population"
)

// EventType names a timeline event.
type EventType string

const (
	IncreaseLoad  EventType = "increase_load"
	InjectFailure EventType = "inject_failure"
	Recovery      EventType = "recovery"
	BurstLoad     EventType = "burst_load"
)

// EventTypes lists every supported event type.
var EventTypes = []EventType{IncreaseLoad, InjectFailure, Recovery, BurstLoad}

// ModelOutage is the only failure type that changes actor state.
const ModelOutage = "model_outage"

// Event parameter defaults.
const (
	DefaultLoadMultiplier     = 2.0
	DefaultAffectedPercentage = 30.0
	DefaultBurstMultiplier    = 5.0
	DefaultBurstDuration      = 300.0
	DefaultScenarioDuration   = 3600.0
	outageFactor              = 0.1
)

// Event is a compiled timeline entry. Offset and Duration are seconds.
type Event struct {
	Offset             float64
	Type               EventType
	Multiplier         float64
	FailureType        string
	AffectedPercentage float64
	Duration           float64
}

// Scenario is a compiled, validated scenario.
type Scenario struct {
	Name        string
	Description string
	// Duration in seconds; 0 runs until stopped. An omitted duration
	// compiles to DefaultScenarioDuration.
	Duration float64
	// Events sorted by offset, ties in declaration order.
	Events []Event
}

// Compile parses every time value and event of sc.
func Compile(sc config.ScenarioConfig) (*Scenario, error) {
	s := &Scenario{
		Name:        sc.Name,
		Description: sc.Description,
		Duration:    DefaultScenarioDuration,
		Events:      make([]Event, 0, len(sc.Timeline)),
	}
	if sc.Duration != nil {
		d, err := ParseTime(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: duration: %w", sc.Name, err)
		}
		s.Duration = d
	}

	for i, ec := range sc.Timeline {
		ev, err := compileEvent(ec)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: timeline[%d]: %w", sc.Name, i, err)
		}
		s.Events = append(s.Events, ev)
	}
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Events[i].Offset < s.Events[j].Offset
	})
	return s, nil
}

func compileEvent(ec config.EventConfig) (Event, error) {
	offset, err := ParseTime(ec.Time)
	if err != nil {
		return Event{}, fmt.Errorf("time: %w", err)
	}
	ev := Event{Offset: offset, Type: EventType(ec.Event)}

	switch ev.Type {
	case IncreaseLoad:
		ev.Multiplier = floatOr(ec.Multiplier, DefaultLoadMultiplier)
		if ev.Multiplier <= 0 {
			return Event{}, fmt.Errorf("increase_load multiplier must be positive")
		}
	case InjectFailure:
		ev.FailureType = ec.Type
		ev.AffectedPercentage = floatOr(ec.AffectedPercentage, DefaultAffectedPercentage)
		if ev.AffectedPercentage < 0 || ev.AffectedPercentage > 100 {
			return Event{}, fmt.Errorf("affected_percentage must be within [0, 100]")
		}
	case Recovery:
	case BurstLoad:
		ev.Multiplier = floatOr(ec.Multiplier, DefaultBurstMultiplier)
		ev.Duration = DefaultBurstDuration
		if ec.Duration != nil {
			d, err := ParseTime(ec.Duration)
			if err != nil {
				return Event{}, fmt.Errorf("duration: %w", err)
			}
			ev.Duration = d
		}
	default:
		return Event{}, fmt.Errorf("%w: %q", core.ErrUnknownEvent, ec.Event)
	}
	return ev, nil
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// CompileAll compiles every configured scenario, keyed by name.
func CompileAll(cfg *config.Config) (map[string]*Scenario, error) {
	out := make(map[string]*Scenario, len(cfg.Scenarios))
	for _, name := range cfg.ScenarioNames() {
		s, err := Compile(cfg.Scenarios[name])
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

// Apply executes one event against the population and returns the number of
// actors whose activity changed.
func Apply(ev Event, pop *population.Population, rng *rand.Rand, logger *slog.Logger) int {
	switch ev.Type {
	case IncreaseLoad:
		pop.Scale(ev.Multiplier)
		logger.Info("load increased", "multiplier", ev.Multiplier, "offset", ev.Offset)
		return pop.Len()

	case InjectFailure:
		if ev.FailureType != ModelOutage {
			logger.Info("failure injected without state change", "type", ev.FailureType, "offset", ev.Offset)
			return 0
		}
		affected := pop.ScaleSample(ev.AffectedPercentage/100, outageFactor, rng)
		logger.Info("model outage injected",
			"affected", len(affected), "percentage", ev.AffectedPercentage, "offset", ev.Offset)
		return len(affected)

	case Recovery:
		pop.Reset()
		logger.Info("activity recovered to baseline", "offset", ev.Offset)
		return pop.Len()

	case BurstLoad:
		// Periodic bursts come from the burst configuration; scripted bursts
		// are recorded only.
		logger.Info("burst load event", "multiplier", ev.Multiplier, "duration", ev.Duration, "offset", ev.Offset)
		return 0
	}
	return 0
}
