package session

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/axiomhq/hyperloglog"

	"telesim/internal/core"
	"telesim/internal/metrics"
	"telesim/internal/population"
)

// Metric family names.
const (
	MetricSessions       = "otel_claude_code_session_count_total"
	MetricTokens         = "otel_claude_code_token_usage_tokens_total"
	MetricCost           = "otel_claude_code_cost_usage_USD_total"
	MetricTools          = "otel_claude_code_tool_usage_total"
	MetricErrors         = "otel_claude_code_error_total"
	MetricCommits        = "otel_claude_code_commit_count_total"
	MetricDuration       = "otel_claude_code_session_duration_seconds"
	MetricActiveSessions = "otel_claude_code_active_sessions"
	MetricActiveUsers    = "otel_claude_code_active_users"
)

// DurationBuckets are the session duration histogram bounds in seconds.
var DurationBuckets = []float64{10, 30, 60, 300, 600, 1800, 3600, 7200}

// Declare registers every session metric family on reg. Label domains are
// the population's actor ids and the configured models, so any other value
// is rejected by the registry.
func Declare(reg *metrics.Registry, userIDs, models []string) error {
	userTypes := make([]string, len(core.ActorTypes))
	for i, at := range core.ActorTypes {
		userTypes[i] = string(at)
	}
	toolNames := make([]string, len(Tools))
	for i, tool := range Tools {
		toolNames[i] = tool.Name
	}

	domains := map[string][]string{
		"user_id":    userIDs,
		"user_type":  userTypes,
		"model":      models,
		"type":       TokenTypes,
		"tool_name":  toolNames,
		"status":     {StatusCompleted, StatusFailed, ToolSuccess, ToolError},
		"error_type": ErrorTypes,
	}
	restrict := func(labels ...string) map[string][]string {
		out := make(map[string][]string, len(labels))
		for _, l := range labels {
			out[l] = domains[l]
		}
		return out
	}

	descs := []metrics.Desc{
		{Name: MetricSessions, Help: "Number of Claude Code sessions started (simulated)",
			Kind: metrics.Counter, Labels: []string{"user_id", "user_type"}},
		{Name: MetricTokens, Help: "Number of tokens used by Claude Code (simulated)",
			Kind: metrics.Counter, Labels: []string{"user_id", "model", "type", "user_type"}},
		{Name: MetricCost, Help: "Cumulative cost of Claude Code usage in USD (simulated)",
			Kind: metrics.Gauge, Labels: []string{"user_id", "model", "user_type"}},
		{Name: MetricTools, Help: "Number of tool invocations in Claude Code sessions (simulated)",
			Kind: metrics.Counter, Labels: []string{"user_id", "tool_name", "status", "user_type"}},
		{Name: MetricErrors, Help: "Number of errors in Claude Code sessions (simulated)",
			Kind: metrics.Counter, Labels: []string{"user_id", "error_type", "tool_name", "user_type"}},
		{Name: MetricCommits, Help: "Number of git commits created by Claude Code (simulated)",
			Kind: metrics.Counter, Labels: []string{"user_id", "user_type"}},
		{Name: MetricDuration, Help: "Claude Code session duration in seconds (simulated)",
			Kind: metrics.Histogram, Labels: []string{"user_id", "user_type", "status"}, Buckets: DurationBuckets},
		{Name: MetricActiveSessions, Help: "Sessions started in the latest generation tick (simulated)",
			Kind: metrics.Gauge, Labels: []string{"user_type"}},
		{Name: MetricActiveUsers, Help: "Estimated distinct users with at least one session (simulated)",
			Kind: metrics.Gauge},
	}
	for _, d := range descs {
		d.Domains = restrict(d.Labels...)
		if err := reg.Declare(d); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}
	return nil
}

// Emitter writes session outcomes into a registry and folds them into the
// actor's running totals. It is used only by the simulation driver.
type Emitter struct {
	reg   *metrics.Registry
	users *hyperloglog.Sketch
}

// NewEmitter creates an Emitter over a registry prepared with Declare.
func NewEmitter(reg *metrics.Registry) *Emitter {
	return &Emitter{
		reg:   reg,
		users: hyperloglog.New(),
	}
}

// Emit records one session. All series of the session become visible to
// readers at once.
func (e *Emitter) Emit(a *population.Actor, o Outcome, now time.Time) error {
	ut := string(o.UserType)
	e.users.Insert([]byte(o.UserID))
	distinct := float64(e.users.Estimate())

	err := e.reg.Batch(func(tx *metrics.Tx) error {
		if err := tx.Add(MetricSessions, 1, o.UserID, ut); err != nil {
			return err
		}
		tokens := []struct {
			kind string
			n    int64
		}{{"input", o.InputTokens}, {"output", o.OutputTokens}, {"cache", o.CacheTokens}}
		for _, tok := range tokens {
			if tok.n <= 0 {
				continue
			}
			if err := tx.Add(MetricTokens, float64(tok.n), o.UserID, o.Model, tok.kind, ut); err != nil {
				return err
			}
		}
		if err := tx.Add(MetricCost, o.Cost, o.UserID, o.Model, ut); err != nil {
			return err
		}
		for _, call := range o.Tools {
			if err := tx.Add(MetricTools, 1, o.UserID, call.Name, call.Status, ut); err != nil {
				return err
			}
		}
		if o.Error != nil {
			if err := tx.Add(MetricErrors, 1, o.UserID, o.Error.Type, o.Error.Tool, ut); err != nil {
				return err
			}
		}
		if o.Commits > 0 {
			if err := tx.Add(MetricCommits, float64(o.Commits), o.UserID, ut); err != nil {
				return err
			}
		}
		if err := tx.Observe(MetricDuration, o.Duration, o.UserID, ut, o.Status); err != nil {
			return err
		}
		return tx.Set(MetricActiveUsers, distinct)
	})
	if err != nil {
		return fmt.Errorf("session: emit %s: %w", o.UserID, err)
	}

	a.TotalSessions++
	a.TotalTokens += o.InputTokens + o.OutputTokens
	a.TotalCost += o.Cost
	at := now
	a.LastSessionAt = &at
	return nil
}

// SetActiveSessions publishes the per-type count of sessions started in the
// latest generation tick. Types without sessions are set to zero.
func (e *Emitter) SetActiveSessions(counts map[core.ActorType]int) error {
	return e.reg.Batch(func(tx *metrics.Tx) error {
		for _, at := range core.ActorTypes {
			if err := tx.Set(MetricActiveSessions, float64(counts[at]), string(at)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Generate runs one generation pass over the population: every actor gets
// one session draw, started sessions are emitted and the active sessions
// gauge is refreshed. It returns the outcomes in actor order.
func (e *Emitter) Generate(pop *population.Population, p Params, rng *rand.Rand, now time.Time) ([]Outcome, error) {
	var outcomes []Outcome
	counts := make(map[core.ActorType]int, len(core.ActorTypes))
	for _, a := range pop.Actors() {
		o, ok := Decide(a, p, rng)
		if !ok {
			continue
		}
		if err := e.Emit(a, o, now); err != nil {
			return outcomes, err
		}
		counts[a.Type]++
		outcomes = append(outcomes, o)
	}
	return outcomes, e.SetActiveSessions(counts)
}
