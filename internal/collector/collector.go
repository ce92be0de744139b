// Package collector aggregates session outcomes into an end-of-run summary.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"telesim/internal/session"
)

// Collector receives session outcomes from the simulation driver and keeps
// them for the run summary. Report never blocks the driver: outcomes beyond
// the buffer are counted as dropped.
type Collector struct {
	outcomes  []session.Outcome
	ch        chan session.Outcome
	done      chan struct{}
	dropped   atomic.Int64
	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector() *Collector {
	c := &Collector{
		outcomes:  make([]session.Outcome, 0),
		ch:        make(chan session.Outcome, 4096),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for o := range c.ch {
		c.mu.Lock()
		c.outcomes = append(c.outcomes, o)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report hands an outcome to the collector. Thread-safe.
func (c *Collector) Report(o session.Outcome) {
	select {
	case c.ch <- o:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting outcomes and waits for the buffer to drain.
func (c *Collector) Close() {
	c.mu.Lock()
	c.endTime = time.Now()
	c.mu.Unlock()
	close(c.ch)
	<-c.done
}

// Outcomes returns a copy of the collected outcomes.
func (c *Collector) Outcomes() []session.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]session.Outcome, len(c.outcomes))
	copy(result, c.outcomes)
	return result
}

// DroppedOutcomes returns how many outcomes did not fit the buffer.
func (c *Collector) DroppedOutcomes() int64 {
	return c.dropped.Load()
}

// Duration returns the collection window: start to Close, or start to now
// while still open.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// Compute summarizes everything collected so far.
func (c *Collector) Compute() *Summary {
	return ComputeSummary(c.Outcomes(), c.Duration())
}
