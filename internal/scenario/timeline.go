package scenario

// Timeline replays a scenario's events through a single monotonic cursor.
// It is owned by the simulation driver.
type Timeline struct {
	events []Event
	cursor int
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Load replaces the queue with events, which must be sorted by offset.
func (t *Timeline) Load(events []Event) {
	t.events = append([]Event(nil), events...)
	t.cursor = 0
}

// Reset drops every queued event and rewinds the cursor.
func (t *Timeline) Reset() {
	t.events = nil
	t.cursor = 0
}

// DueAt returns every not yet dispatched event whose offset is at or before
// elapsed seconds and advances the cursor past them.
func (t *Timeline) DueAt(elapsed float64) []Event {
	start := t.cursor
	for t.cursor < len(t.events) && t.events[t.cursor].Offset <= elapsed {
		t.cursor++
	}
	if t.cursor == start {
		return nil
	}
	return t.events[start:t.cursor]
}

// Pending returns the number of events not yet dispatched.
func (t *Timeline) Pending() int {
	return len(t.events) - t.cursor
}

// Dispatched returns the number of events already dispatched.
func (t *Timeline) Dispatched() int {
	return t.cursor
}
