package simulation

import (
	"math"
	"time"

	"telesim/internal/scenario"
)

// Health is the reader-facing summary served on /health.
type Health struct {
	Status          string  `json:"status"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	UsersCount      int     `json:"users_count"`
	CurrentScenario *string `json:"current_scenario"`
	TotalSessions   int     `json:"total_sessions"`
	TotalCost       float64 `json:"total_cost"`
	AvgActivity     float64 `json:"avg_activity"`
	LastUpdate      string  `json:"last_update"`
	ScenarioState   string  `json:"scenario_state"`
	RunID           string  `json:"run_id"`
}

// Health builds the health summary from the published snapshot. It never
// touches driver-owned state.
func (s *Simulation) Health() Health {
	state, name := s.machine.State()
	snap := s.Snapshot()

	status := "stopped"
	if state == scenario.Running {
		status = "healthy"
	}
	var current *string
	if name != "" {
		current = &name
	}

	return Health{
		Status:          status,
		UptimeSeconds:   round2(s.clock.Since(s.startedAt).Seconds()),
		UsersCount:      snap.Users,
		CurrentScenario: current,
		TotalSessions:   snap.TotalSessions,
		TotalCost:       round2(snap.TotalCost),
		AvgActivity:     round2(snap.AvgActivity),
		LastUpdate:      snap.TakenAt.UTC().Format(time.RFC3339),
		ScenarioState:   state.String(),
		RunID:           s.runID,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
