// Package simulation owns the simulation context and the tick-driven loop
// that advances it.
//
// A single driver goroutine mutates the population, the timeline and the
// metric registry. Everything other goroutines need is either guarded by the
// registry's lock or published as an immutable population snapshot.
package simulation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"telesim/internal/config"
	"telesim/internal/core"
	"telesim/internal/logging"
	"telesim/internal/metrics"
	"telesim/internal/population"
	"telesim/internal/scenario"
	"telesim/internal/session"
	"telesim/internal/telemetry"
)

// Reporter receives every session outcome the simulation emits.
type Reporter interface {
	Report(o session.Outcome)
}

// Options are the optional collaborators of a Simulation.
type Options struct {
	Clock    core.Clock
	Logger   *slog.Logger
	Self     *telemetry.SelfMetrics
	Reporter Reporter
	// OnStatus is called from the driver every statusEvery ticks and when a
	// run ends. It must not block.
	OnStatus func(Status)
}

// Simulation is the explicit context shared by every component: validated
// configuration, random source, population, registry, timeline and clock.
type Simulation struct {
	cfg       *config.Config
	seed      int64
	rng       *rand.Rand
	pop       *population.Population
	registry  *metrics.Registry
	emitter   *session.Emitter
	params    session.Params
	scenarios map[string]*scenario.Scenario
	timeline  *scenario.Timeline
	machine   *scenario.Machine
	clock     core.Clock
	logger    *slog.Logger
	self      *telemetry.SelfMetrics
	reporter  Reporter
	onStatus  func(Status)
	runID     string
	startedAt time.Time

	// Driver-owned run state.
	current  *scenario.Scenario
	duration float64
	runStart time.Time
	tick     uint64

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	loadedCh chan struct{}

	mu      sync.Mutex // guards running and pending
	running bool
	pending *reloadRequest

	snapshot atomic.Pointer[population.Snapshot]
}

type reloadRequest struct {
	name     string
	duration float64
}

// New builds a simulation from a validated configuration. Every scenario is
// compiled up front so timeline errors surface at startup.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Self == nil {
		opts.Self = telemetry.NewSelfMetrics()
	}

	scenarios, err := scenario.CompileAll(cfg)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))

	pop, err := population.New(cfg.Users, rng)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	reg := metrics.NewRegistry(opts.Clock)
	if err := session.Declare(reg, pop.IDs(), cfg.Models()); err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	s := &Simulation{
		cfg:       cfg,
		seed:      seed,
		rng:       rng,
		pop:       pop,
		registry:  reg,
		emitter:   session.NewEmitter(reg),
		params:    session.NewParams(cfg),
		scenarios: scenarios,
		timeline:  scenario.NewTimeline(),
		machine:   scenario.NewMachine(),
		clock:     opts.Clock,
		self:      opts.Self,
		reporter:  opts.Reporter,
		onStatus:  opts.OnStatus,
		runID:     uuid.NewString(),
		startedAt: opts.Clock.Now(),
		stopCh:    make(chan struct{}),
		loadedCh:  make(chan struct{}, 1),
	}
	s.logger = opts.Logger.With("run_id", s.runID)
	s.publish()

	s.logger.Info("simulation initialized",
		"seed", seed,
		"users", pop.Len(),
		"scenarios", len(scenarios),
		"tick_interval", cfg.Simulation.TickInterval,
	)
	return s, nil
}

// Load selects a scenario for the next run. duration overrides the
// scenario's own duration when positive. Load fails while a run is active;
// use Reload to switch scenarios mid-run.
func (s *Simulation) Load(name string, duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("simulation: load %q: a run is active", name)
	}
	return s.loadLocked(name, duration)
}

// Reload requests a switch to another scenario. While a run is active the
// request is queued and applied by the driver at the top of its next tick:
// the current run is stopped, the timeline cursor reset and the new scenario
// started. Otherwise the scenario is loaded immediately.
func (s *Simulation) Reload(name string, duration float64) error {
	if _, ok := s.scenarios[name]; !ok {
		return fmt.Errorf("simulation: %w: %q", core.ErrUnknownScenario, name)
	}
	if duration < 0 {
		return fmt.Errorf("simulation: duration must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.pending = &reloadRequest{name: name, duration: duration}
		return nil
	}
	return s.loadLocked(name, duration)
}

// loadLocked must be called with s.mu held and no run active.
func (s *Simulation) loadLocked(name string, duration float64) error {
	sc, ok := s.scenarios[name]
	if !ok {
		return fmt.Errorf("simulation: %w: %q", core.ErrUnknownScenario, name)
	}
	if err := s.machine.Load(name); err != nil {
		return err
	}

	s.current = sc
	s.duration = sc.Duration
	if duration > 0 {
		s.duration = duration
	}
	s.timeline.Reset()
	s.pop.Reset()
	s.pending = nil
	s.publish()

	select {
	case s.loadedCh <- struct{}{}:
	default:
	}
	s.logger.Info("scenario loaded", "scenario", name, "duration_seconds", s.duration, "events", len(sc.Events))
	return nil
}

// Stop requests the driver to finish. The current tick completes; the next
// one observes the flag. Safe to call more than once and from any goroutine.
func (s *Simulation) Stop() {
	s.stopped.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Stopped reports whether Stop has been called.
func (s *Simulation) Stopped() bool {
	return s.stopped.Load()
}

// Snapshot returns the latest published population snapshot.
func (s *Simulation) Snapshot() *population.Snapshot {
	return s.snapshot.Load()
}

func (s *Simulation) publish() {
	s.snapshot.Store(s.pop.Snapshot(s.clock.Now()))
}

// Registry returns the simulated metric registry.
func (s *Simulation) Registry() *metrics.Registry {
	return s.registry
}

// Self returns the self-instrumentation metrics.
func (s *Simulation) Self() *telemetry.SelfMetrics {
	return s.self
}

// Gatherer merges the simulated families with the self-instrumentation.
func (s *Simulation) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{s.registry, s.self.Registry}
}

// WriteMetrics renders the simulated families followed by the
// self-instrumentation in the text exposition format. A self-instrumentation
// gather error is returned after every family that could be gathered has
// been written.
func (s *Simulation) WriteMetrics(w io.Writer) error {
	if err := s.registry.WriteText(w); err != nil {
		return err
	}
	families, gatherErr := s.self.Registry.Gather()
	if err := metrics.WriteFamilies(w, families); err != nil {
		return err
	}
	return gatherErr
}

// Config returns the active configuration. Callers must not modify it.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// RunID identifies this simulator process.
func (s *Simulation) RunID() string {
	return s.runID
}

// Seed returns the effective random seed.
func (s *Simulation) Seed() int64 {
	return s.seed
}

// Scenarios returns the configured scenario names in sorted order.
func (s *Simulation) Scenarios() []string {
	names := make([]string, 0, len(s.scenarios))
	for name := range s.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasScenario reports whether name is configured.
func (s *Simulation) HasScenario(name string) bool {
	_, ok := s.scenarios[name]
	return ok
}

// State returns the scenario lifecycle state and scenario name.
func (s *Simulation) State() (scenario.State, string) {
	return s.machine.State()
}

// IsUnknownScenario reports whether err is caused by an unknown scenario name.
func IsUnknownScenario(err error) bool {
	return errors.Is(err, core.ErrUnknownScenario)
}
