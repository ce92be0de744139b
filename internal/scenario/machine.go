package scenario

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of the active scenario.
type State int

const (
	NotLoaded State = iota
	Loaded
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "NOT_LOADED"
	case Loaded:
		return "LOADED"
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Machine tracks the scenario lifecycle. The driver performs transitions;
// HTTP handlers read it concurrently.
type Machine struct {
	mu       sync.RWMutex
	state    State
	scenario string
}

// NewMachine returns a machine in NotLoaded.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current state and scenario name.
func (m *Machine) State() (State, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.scenario
}

// Load selects a scenario. Loading while running is rejected; the driver
// stops the run first.
func (m *Machine) Load(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Running {
		return fmt.Errorf("scenario: cannot load %q while %s is running", name, m.scenario)
	}
	m.state = Loaded
	m.scenario = name
	return nil
}

// Start moves a loaded scenario to Running.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Loaded {
		return fmt.Errorf("scenario: cannot start from %s", m.state)
	}
	m.state = Running
	return nil
}

// Stop ends the run. Stopping a stopped scenario is a no-op.
func (m *Machine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Running, Loaded, Stopped:
		m.state = Stopped
		return nil
	}
	return fmt.Errorf("scenario: cannot stop from %s", m.state)
}
