// Package progress renders a live one-line console status of the simulation.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"telesim/internal/population"
	"telesim/internal/scenario"
)

// Source is what the status line reads. *simulation.Simulation satisfies it.
type Source interface {
	Snapshot() *population.Snapshot
	State() (scenario.State, string)
}

type Progress struct {
	startTime time.Time
	source    Source
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	done      chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(src Source, quiet bool) *Progress {
	return &Progress{
		source:   src,
		quiet:    quiet,
		interval: time.Second,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetInterval changes the refresh period. Call before Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.output, "\033[K"+Line(p.source, time.Since(p.startTime))+"\r")
}

// Line formats one status line for the given elapsed time.
func Line(src Source, elapsed time.Duration) string {
	snap := src.Snapshot()
	state, name := src.State()
	if name == "" {
		name = "-"
	}
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("[%02d:%02d] %s (%s) | Users: %d | Sessions: %d | Tokens: %d | Cost: $%.2f | Activity: %.2f",
		mins, secs, name, state, snap.Users, snap.TotalSessions, snap.TotalTokens, snap.TotalCost, snap.AvgActivity)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
		<-p.done
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
