package collector

import (
	"sort"
	"time"

	"telesim/internal/session"
)

// Summary is the aggregate of a run's sessions.
type Summary struct {
	TotalSessions  int
	Completed      int
	Failed         int
	SuccessRate    float64
	SessionsPerMin float64
	RunDuration    time.Duration
	TotalTokens    int64
	TotalCost      float64
	ToolCalls      int
	Errors         int
	Commits        int
	Duration       DurationMetrics
	ByUserType     map[string]*GroupMetrics
	ByModel        map[string]*GroupMetrics
}

// GroupMetrics aggregates the sessions of one user type or model.
type GroupMetrics struct {
	Sessions int
	Failed   int
	Tokens   int64
	Cost     float64
	Duration DurationMetrics
}

// DurationMetrics contains session duration statistics.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// ComputeSummary aggregates outcomes. Pure function, no side effects.
func ComputeSummary(outcomes []session.Outcome, runDuration time.Duration) *Summary {
	s := &Summary{
		RunDuration: runDuration,
		ByUserType:  make(map[string]*GroupMetrics),
		ByModel:     make(map[string]*GroupMetrics),
	}
	if len(outcomes) == 0 {
		return s
	}

	all := make([]time.Duration, 0, len(outcomes))
	byType := make(map[string][]time.Duration)
	byModel := make(map[string][]time.Duration)

	for _, o := range outcomes {
		d := time.Duration(o.Duration * float64(time.Second))
		tokens := o.InputTokens + o.OutputTokens

		s.TotalSessions++
		if o.Failed() {
			s.Failed++
		} else {
			s.Completed++
		}
		s.TotalTokens += tokens
		s.TotalCost += o.Cost
		s.ToolCalls += len(o.Tools)
		s.Commits += o.Commits
		if o.Error != nil {
			s.Errors++
		}
		all = append(all, d)

		ut := string(o.UserType)
		addToGroup(s.ByUserType, ut, o, tokens)
		byType[ut] = append(byType[ut], d)

		addToGroup(s.ByModel, o.Model, o, tokens)
		byModel[o.Model] = append(byModel[o.Model], d)
	}

	s.SuccessRate = float64(s.Completed) / float64(s.TotalSessions) * 100
	if runDuration > 0 {
		s.SessionsPerMin = float64(s.TotalSessions) / runDuration.Minutes()
	}

	s.Duration = ComputeDurationMetrics(all)
	for k, ds := range byType {
		s.ByUserType[k].Duration = ComputeDurationMetrics(ds)
	}
	for k, ds := range byModel {
		s.ByModel[k].Duration = ComputeDurationMetrics(ds)
	}
	return s
}

func addToGroup(groups map[string]*GroupMetrics, key string, o session.Outcome, tokens int64) {
	g, ok := groups[key]
	if !ok {
		g = &GroupMetrics{}
		groups[key] = g
	}
	g.Sessions++
	if o.Failed() {
		g.Failed++
	}
	g.Tokens += tokens
	g.Cost += o.Cost
}

// ComputePercentile returns the nearest-rank percentile of an ascending
// slice. p is between 0 and 1 (e.g. 0.95 for p95).
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

// ComputeDurationMetrics calculates all duration statistics from a slice of durations.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}
