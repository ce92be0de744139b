// Package session turns actor activity into coding sessions and their
// token, cost, tool, error and commit telemetry.
//
// Decide is pure apart from the random draws it takes from the supplied
// generator; Emitter writes a decided Outcome into the metric registry.
package session

import (
	"math"
	"math/rand/v2"
	"sort"

	"telesim/internal/config"
	"telesim/internal/core"
	"telesim/internal/population"
)

// Session status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Tool call status values.
const (
	ToolSuccess = "success"
	ToolError   = "error"
)

// Duration bounds in seconds.
const (
	MinDuration = 10.0
	MaxDuration = 7200.0
)

// Weighted is a name with a selection weight.
type Weighted struct {
	Name   string
	Weight float64
}

// Tools is the tool mix of a session.
var Tools = []Weighted{
	{"Read", 0.25},
	{"Write", 0.15},
	{"Edit", 0.20},
	{"Bash", 0.15},
	{"Glob", 0.10},
	{"Grep", 0.10},
	{"MultiEdit", 0.03},
	{"Task", 0.02},
}

// ErrorTypes and ErrorTools are drawn uniformly for session errors.
var (
	ErrorTypes = []string{"timeout", "network", "auth", "validation", "rate_limit"}
	ErrorTools = []string{"Read", "Write", "Edit", "Bash"}
)

// TokenTypes are the values of the token usage "type" label.
var TokenTypes = []string{"input", "output", "cache"}

type durationShape struct {
	median float64
	sigma  float64
}

var durationShapes = map[core.ActorType]durationShape{
	core.Power:   {1800, 0.8},
	core.Regular: {600, 0.6},
	core.Idle:    {300, 0.4},
}

var commitProbability = map[core.ActorType]float64{
	core.Power:   0.4,
	core.Regular: 0.2,
	core.Idle:    0.05,
}

const cacheProbability = 0.2

// Params are the configuration inputs of a session decision.
type Params struct {
	ActivityMultiplier float64
	FailureRate        float64
	ErrorRate          float64
	// Models holds each actor type's model weights in name order.
	Models  map[core.ActorType][]Weighted
	Pricing map[string]config.Pricing
}

// NewParams derives decision parameters from a validated configuration.
func NewParams(cfg *config.Config) Params {
	p := Params{
		ActivityMultiplier: cfg.Simulation.ActivityMultiplier,
		FailureRate:        cfg.Simulation.FailureRate,
		ErrorRate:          cfg.Simulation.ErrorRate(),
		Models:             make(map[core.ActorType][]Weighted, len(cfg.ModelDistribution)),
		Pricing:            cfg.Costs,
	}
	for typeName, weights := range cfg.ModelDistribution {
		at, err := core.ParseActorType(typeName)
		if err != nil {
			continue
		}
		ws := make([]Weighted, 0, len(weights))
		for model, w := range weights {
			ws = append(ws, Weighted{Name: model, Weight: w})
		}
		sort.Slice(ws, func(i, j int) bool { return ws[i].Name < ws[j].Name })
		p.Models[at] = ws
	}
	return p
}

// ToolCall is one tool invocation within a session.
type ToolCall struct {
	Name   string
	Status string
}

// Error is the error event of a session, if any.
type Error struct {
	Type string
	Tool string
}

// Outcome is everything a single session produced.
type Outcome struct {
	UserID       string
	UserType     core.ActorType
	Model        string
	Duration     float64
	Status       string
	InputTokens  int64
	OutputTokens int64
	CacheTokens  int64
	Cost         float64
	Tools        []ToolCall
	Error        *Error
	Commits      int
}

// Failed reports whether the session ended in failure.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Probability returns the chance that an actor at the given activity level
// starts a session on one generation tick.
func Probability(level, multiplier float64) float64 {
	return ClampProbability(level * multiplier / core.MaxActivity)
}

// ClampProbability bounds p to [0, 1]. NaN maps to 0.
func ClampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Decide draws whether the actor starts a session and, if so, its outcome.
// The actor is not modified.
func Decide(a *population.Actor, p Params, rng *rand.Rand) (Outcome, bool) {
	if rng.Float64() > Probability(a.ActivityLevel, p.ActivityMultiplier) {
		return Outcome{}, false
	}

	o := Outcome{
		UserID:   a.ID,
		UserType: a.Type,
		Model:    pick(p.Models[a.Type], rng),
		Duration: drawDuration(a.Type, rng),
		Status:   StatusCompleted,
	}
	if rng.Float64() < p.FailureRate {
		o.Status = StatusFailed
	}

	base := float64(int64(o.Duration * a.ActivityLevel * uniform(rng, 0.5, 2.0)))
	o.InputTokens = int64(base * uniform(rng, 0.6, 1.0))
	o.OutputTokens = int64(base * uniform(rng, 0.3, 0.7))
	if rng.Float64() < cacheProbability {
		o.CacheTokens = int64(base * uniform(rng, 0.1, 0.3))
	}

	if price, ok := p.Pricing[o.Model]; ok {
		o.Cost = float64(o.InputTokens)/1000*price.Input + float64(o.OutputTokens)/1000*price.Output
	}

	o.Tools = drawTools(a.Type, o.Duration, o.Failed(), rng)

	errRate := p.ErrorRate
	if o.Failed() {
		errRate *= 5
	}
	if rng.Float64() < errRate {
		o.Error = &Error{
			Type: ErrorTypes[rng.IntN(len(ErrorTypes))],
			Tool: ErrorTools[rng.IntN(len(ErrorTools))],
		}
	}

	if rng.Float64() < commitProbability[a.Type] {
		o.Commits = 1 + rng.IntN(5)
	}
	return o, true
}

func drawDuration(at core.ActorType, rng *rand.Rand) float64 {
	shape, ok := durationShapes[at]
	if !ok {
		shape = durationShapes[core.Regular]
	}
	d := math.Exp(math.Log(shape.median) + shape.sigma*rng.NormFloat64())
	return math.Min(math.Max(d, MinDuration), MaxDuration)
}

func drawTools(at core.ActorType, duration float64, failed bool, rng *rand.Rand) []ToolCall {
	n := int(duration / 60)
	switch at {
	case core.Power:
		n = int(float64(n) * 1.5)
	case core.Idle:
		n = int(float64(n) * 0.5)
	}
	if n < 1 {
		n = 1
	}

	calls := make([]ToolCall, n)
	for i := range calls {
		calls[i] = ToolCall{Name: pick(Tools, rng), Status: ToolSuccess}
		if failed && rng.Float64() < 0.3 {
			calls[i].Status = ToolError
		}
	}
	return calls
}

// pick makes a weighted draw. Weights need not sum to one.
func pick(ws []Weighted, rng *rand.Rand) string {
	if len(ws) == 0 {
		return ""
	}
	var total float64
	for _, w := range ws {
		total += w.Weight
	}
	r := rng.Float64() * total
	for _, w := range ws {
		if r < w.Weight {
			return w.Name
		}
		r -= w.Weight
	}
	return ws[len(ws)-1].Name
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
