package simulation

import (
	"context"
	"fmt"
	"time"

	"telesim/internal/activity"
	"telesim/internal/population"
	"telesim/internal/scenario"
	"telesim/internal/session"
)

// Tick cadences, in ticks of the configured interval.
const (
	activityEvery = 10
	sessionEvery  = 5
	statusEvery   = 100

	// activityDt is the time step of every activity update, in seconds.
	activityDt = 1.0
)

// Status is the periodic summary of a run.
type Status struct {
	Tick       uint64
	Scenario   string
	State      scenario.State
	Elapsed    time.Duration
	Dispatched int
	Pending    int
	Snapshot   *population.Snapshot
}

// Serve drives consecutive runs until ctx is cancelled or Stop is called:
// whenever a scenario is loaded it is run to completion, then Serve waits
// for the next Load or Reload.
func (s *Simulation) Serve(ctx context.Context) error {
	for {
		if st, _ := s.machine.State(); st == scenario.Loaded {
			if err := s.Run(ctx); err != nil {
				return err
			}
		}
		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.loadedCh:
		}
	}
}

// Run executes the loaded scenario on a fixed-period ticker until its
// duration elapses, Stop is called or ctx is cancelled. On exit the scenario
// is STOPPED and a final snapshot is published.
func (s *Simulation) Run(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.finish()

	ticker := time.NewTicker(s.cfg.Simulation.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if done := s.Step(); done {
				return nil
			}
		}
	}
}

func (s *Simulation) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("simulation: already running")
	}
	if err := s.machine.Start(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	s.running = true
	s.startRun()
	return nil
}

// startRun resets the per-run state. Called with the scenario loaded.
func (s *Simulation) startRun() {
	s.tick = 0
	s.runStart = s.clock.Now()
	s.timeline.Load(s.current.Events)
	s.logger.Info("scenario started", "scenario", s.current.Name, "duration_seconds", s.duration)
}

func (s *Simulation) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Stop(); err != nil {
		s.logger.Error("stopping scenario", "error", err)
	}
	s.running = false
	s.publish()
	s.emitStatus()
	s.logger.Info("scenario stopped", "scenario", s.current.Name, "ticks", s.tick)

	if req := s.pending; req != nil {
		if err := s.loadLocked(req.name, req.duration); err != nil {
			s.logger.Error("applying queued reload", "scenario", req.name, "error", err)
		}
	}
}

// Step executes one tick and reports whether the run is over. Run calls it
// from the ticker; tests call it directly with a fake clock.
//
// Order within a tick: stop flag and queued reload, due timeline events,
// activity update every 10th tick, session generation every 5th tick,
// status every 100th tick, snapshot publication.
func (s *Simulation) Step() bool {
	if s.stopped.Load() {
		return true
	}
	s.applyPendingReload()

	elapsed := s.clock.Since(s.runStart)
	if s.duration > 0 && elapsed.Seconds() >= s.duration {
		return true
	}

	start := time.Now()
	s.tick++

	for _, ev := range s.timeline.DueAt(elapsed.Seconds()) {
		scenario.Apply(ev, s.pop, s.rng, s.logger)
		s.self.EventsDispatched.WithLabelValues(string(ev.Type)).Inc()
	}

	if s.tick%activityEvery == 0 {
		s.updateActivity(elapsed)
	}
	if s.tick%sessionEvery == 0 {
		s.generateSessions()
	}

	s.publish()
	if s.tick%statusEvery == 0 {
		s.emitStatus()
	}

	s.self.Ticks.Inc()
	s.self.TickDuration.Observe(time.Since(start).Seconds())
	return false
}

func (s *Simulation) applyPendingReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.pending
	if req == nil {
		return
	}
	s.pending = nil

	if err := s.machine.Stop(); err != nil {
		s.logger.Error("stopping scenario for reload", "error", err)
	}
	if err := s.loadLocked(req.name, req.duration); err != nil {
		s.logger.Error("reloading scenario", "scenario", req.name, "error", err)
		return
	}
	if err := s.machine.Start(); err != nil {
		s.logger.Error("starting reloaded scenario", "error", err)
		return
	}
	// The load signal is for Serve, which is already inside Run.
	select {
	case <-s.loadedCh:
	default:
	}
	s.self.Reloads.Inc()
	s.startRun()
}

func (s *Simulation) updateActivity(elapsed time.Duration) {
	seasonal := activity.SeasonalFactor(s.clock.Now())
	burst := activity.BurstFactor(elapsed.Seconds(), s.cfg.Burst)
	for _, a := range s.pop.Actors() {
		activity.Update(a, activityDt, seasonal, burst, s.rng)
	}
}

func (s *Simulation) generateSessions() {
	outcomes, err := s.emitter.Generate(s.pop, s.params, s.rng, s.clock.Now())
	if err != nil {
		s.self.EmitErrors.Inc()
		s.logger.Warn("session emission failed", "error", err)
	}
	s.self.SessionsStarted.Add(float64(len(outcomes)))
	if s.reporter != nil {
		for _, o := range outcomes {
			s.reporter.Report(o)
		}
	}
}

func (s *Simulation) emitStatus() {
	st := s.status()
	activeUsers, _ := s.registry.Value(session.MetricActiveUsers)
	s.logger.Info("simulation status",
		"tick", st.Tick,
		"scenario", st.Scenario,
		"state", st.State.String(),
		"elapsed", st.Elapsed.Round(time.Second),
		"total_sessions", st.Snapshot.TotalSessions,
		"total_cost", st.Snapshot.TotalCost,
		"avg_activity", st.Snapshot.AvgActivity,
		"events_pending", st.Pending,
		"exported_sessions", s.registry.Sum(session.MetricSessions),
		"active_users", activeUsers,
	)
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

func (s *Simulation) status() Status {
	state, name := s.machine.State()
	return Status{
		Tick:       s.tick,
		Scenario:   name,
		State:      state,
		Elapsed:    s.clock.Since(s.runStart),
		Dispatched: s.timeline.Dispatched(),
		Pending:    s.timeline.Pending(),
		Snapshot:   s.Snapshot(),
	}
}
