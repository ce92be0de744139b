package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"telesim/internal/config"
	"telesim/internal/core"
	"telesim/internal/scenario"
	"telesim/internal/session"
)

// Wednesday, inside business hours.
var testStart = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Users.Total = 12
	cfg.Simulation.Seed = 1
	cfg.Simulation.TickInterval = time.Millisecond
	return cfg
}

func newTestSimulation(t *testing.T, opts Options) (*Simulation, *core.FakeClock) {
	t.Helper()
	clock := core.NewFakeClock(testStart)
	if opts.Clock == nil {
		opts.Clock = clock
	}
	s, err := New(testConfig(), opts)
	if err != nil {
		t.Fatalf("new simulation: %v", err)
	}
	return s, clock
}

// startScenario loads and starts a run without the ticker so tests can
// drive Step directly.
func startScenario(t *testing.T, s *Simulation, name string, duration float64) {
	t.Helper()
	if err := s.Load(name, duration); err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	if err := s.begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func levels(s *Simulation) []float64 {
	out := make([]float64, s.pop.Len())
	for i, a := range s.pop.Actors() {
		out[i] = a.ActivityLevel
	}
	return out
}

func equalLevels(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew_InvalidScenarioIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Scenarios["broken"] = config.ScenarioConfig{
		Name:     "broken",
		Timeline: []config.EventConfig{{Time: "soon", Event: "recovery"}},
	}
	if _, err := New(cfg, Options{}); err == nil {
		t.Fatal("expected error for malformed timeline")
	}
}

func TestStep_ActivityEveryTenthTick(t *testing.T) {
	s, _ := newTestSimulation(t, Options{})
	startScenario(t, s, "baseline", 0)
	initial := levels(s)

	for i := 0; i < 9; i++ {
		s.Step()
	}
	if !equalLevels(initial, levels(s)) {
		t.Fatal("activity changed before the tenth tick")
	}

	s.Step()
	if equalLevels(initial, levels(s)) {
		t.Error("expected activity update on the tenth tick")
	}
	for _, a := range s.pop.Actors() {
		if a.ActivityLevel < core.MinActivity || a.ActivityLevel > core.MaxActivity {
			t.Errorf("actor %s level %v out of bounds", a.ID, a.ActivityLevel)
		}
	}
}

func TestStep_SessionsEveryFifthTick(t *testing.T) {
	s, _ := newTestSimulation(t, Options{})
	startScenario(t, s, "baseline", 0)

	for i := 0; i < 4; i++ {
		s.Step()
	}
	if _, ok := s.registry.Value(session.MetricActiveSessions, "regular"); ok {
		t.Fatal("sessions generated before the fifth tick")
	}

	s.Step()
	if _, ok := s.registry.Value(session.MetricActiveSessions, "regular"); !ok {
		t.Error("expected active sessions gauge after the fifth tick")
	}
}

func TestStep_StatusEveryHundredthTick(t *testing.T) {
	var mu sync.Mutex
	var statuses []Status
	s, _ := newTestSimulation(t, Options{OnStatus: func(st Status) {
		mu.Lock()
		statuses = append(statuses, st)
		mu.Unlock()
	}})
	startScenario(t, s, "baseline", 0)

	for i := 0; i < 250; i++ {
		s.Step()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 status callbacks, got %d", len(statuses))
	}
	if statuses[0].Tick != 100 || statuses[1].Tick != 200 {
		t.Errorf("unexpected status ticks %d, %d", statuses[0].Tick, statuses[1].Tick)
	}
	if statuses[0].Scenario != "baseline" || statuses[0].State != scenario.Running {
		t.Errorf("unexpected status %+v", statuses[0])
	}
}

func TestStep_DispatchesDueEvents(t *testing.T) {
	s, clock := newTestSimulation(t, Options{})
	startScenario(t, s, "high_load", 0)
	base := levels(s)

	clock.Advance(5 * time.Minute)
	s.Step()

	for i, a := range s.pop.Actors() {
		if want := core.ClampActivity(base[i] * 2.0); a.ActivityLevel != want {
			t.Errorf("actor %d: expected %v, got %v", i, want, a.ActivityLevel)
		}
	}

	clock.Advance(15 * time.Minute)
	s.Step()
	for _, a := range s.pop.Actors() {
		if a.ActivityLevel != a.BaseActivity {
			t.Errorf("actor %s: expected recovery to base", a.ID)
		}
	}

	var m dto.Metric
	if err := s.self.EventsDispatched.WithLabelValues("increase_load").Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("expected one increase_load dispatch, got %v", m.GetCounter().GetValue())
	}
}

func TestStep_EndsAtDuration(t *testing.T) {
	s, clock := newTestSimulation(t, Options{})
	startScenario(t, s, "baseline", 2)

	if s.Step() {
		t.Fatal("run ended too early")
	}
	clock.Advance(2 * time.Second)
	if !s.Step() {
		t.Error("expected run to end once elapsed reaches duration")
	}
}

func TestStep_ObservesStopFlag(t *testing.T) {
	s, _ := newTestSimulation(t, Options{})
	startScenario(t, s, "baseline", 0)

	s.Stop()
	s.Stop()
	if !s.Step() {
		t.Error("expected stop flag to end the run")
	}
	if !s.Stopped() {
		t.Error("expected Stopped to report true")
	}
}

func TestReload_WhileRunningIsSerialized(t *testing.T) {
	s, clock := newTestSimulation(t, Options{})
	startScenario(t, s, "high_load", 0)

	clock.Advance(5 * time.Minute)
	s.Step() // load doubled

	if err := s.Reload("model_outage", 0); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, name := s.State(); name != "high_load" {
		t.Errorf("reload must wait for the driver, scenario is %s", name)
	}

	s.Step()
	state, name := s.State()
	if state != scenario.Running || name != "model_outage" {
		t.Errorf("expected RUNNING model_outage, got %s %s", state, name)
	}
	if s.timeline.Dispatched() != 0 || s.timeline.Pending() != 2 {
		t.Errorf("expected fresh timeline, got dispatched=%d pending=%d",
			s.timeline.Dispatched(), s.timeline.Pending())
	}
	for _, a := range s.pop.Actors() {
		if a.ActivityLevel != a.BaseActivity {
			t.Errorf("actor %s: expected activity reset on reload", a.ID)
		}
	}
}

func TestReload_UnknownScenario(t *testing.T) {
	s, _ := newTestSimulation(t, Options{})

	err := s.Reload("nope", 0)
	if !IsUnknownScenario(err) {
		t.Errorf("expected unknown scenario error, got %v", err)
	}
	if err := s.Reload("baseline", -1); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestLoad_RejectedWhileRunning(t *testing.T) {
	s, _ := newTestSimulation(t, Options{})
	startScenario(t, s, "baseline", 0)

	if err := s.Load("burst", 0); err == nil {
		t.Error("expected load to fail while running")
	}
}

func TestHealth(t *testing.T) {
	s, clock := newTestSimulation(t, Options{})

	h := s.Health()
	if h.Status != "stopped" || h.CurrentScenario != nil || h.ScenarioState != "NOT_LOADED" {
		t.Errorf("unexpected initial health %+v", h)
	}
	if h.UsersCount != 12 || h.RunID == "" {
		t.Errorf("unexpected initial health %+v", h)
	}

	startScenario(t, s, "baseline", 0)
	clock.Advance(90 * time.Second)
	for i := 0; i < 5; i++ {
		s.Step()
	}

	h = s.Health()
	if h.Status != "healthy" || h.CurrentScenario == nil || *h.CurrentScenario != "baseline" || h.ScenarioState != "RUNNING" {
		t.Errorf("unexpected running health %+v", h)
	}
	if h.UptimeSeconds != 90 {
		t.Errorf("expected uptime 90, got %v", h.UptimeSeconds)
	}
	if h.LastUpdate != testStart.Add(90*time.Second).Format(time.RFC3339) {
		t.Errorf("unexpected last update %s", h.LastUpdate)
	}
}

func TestSameSeedIsReproducible(t *testing.T) {
	run := func() (int, float64) {
		s, _ := newTestSimulation(t, Options{})
		startScenario(t, s, "baseline", 0)
		for i := 0; i < 200; i++ {
			s.Step()
		}
		snap := s.Snapshot()
		return snap.TotalSessions, snap.TotalCost
	}

	sessions1, cost1 := run()
	sessions2, cost2 := run()
	if sessions1 != sessions2 || cost1 != cost2 {
		t.Errorf("runs differ: %d/%v vs %d/%v", sessions1, cost1, sessions2, cost2)
	}
	if sessions1 == 0 {
		t.Error("expected sessions during business hours")
	}
}

type recorder struct {
	mu sync.Mutex
	n  int
}

func (r *recorder) Report(session.Outcome) {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func TestRun_EndsAfterDuration(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := &recorder{}
	s, err := New(testConfig(), Options{Reporter: rec})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Load("baseline", 0.05); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("run did not end on its own")
	}
	if state, _ := s.State(); state != scenario.Stopped {
		t.Errorf("expected STOPPED, got %s", state)
	}
	if err := s.Run(ctx); err == nil {
		t.Error("a stopped scenario must be reloaded before running again")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := New(testConfig(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Load("baseline", 0); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if state, _ := s.State(); state != scenario.Stopped {
		t.Errorf("expected STOPPED, got %s", state)
	}
}

func TestServe_RunsReloadedScenarios(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := New(testConfig(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	if err := s.Reload("baseline", 0.03); err != nil {
		t.Fatal(err)
	}
	waitForState(t, s, scenario.Stopped, "baseline")

	if err := s.Reload("burst", 0.03); err != nil {
		t.Fatal(err)
	}
	waitForState(t, s, scenario.Stopped, "burst")

	s.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after Stop")
	}
}

func waitForState(t *testing.T, s *Simulation, want scenario.State, name string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, n := s.State(); st == want && n == name {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, n := s.State()
	t.Fatalf("timed out waiting for %s %s, have %s %s", want, name, st, n)
}
