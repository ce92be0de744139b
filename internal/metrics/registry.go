// Package metrics is the typed, labeled metric store of the simulator.
//
// Families are declared up front with their label names, the closed set of
// values each label may take and, for histograms, the bucket boundaries.
// Writers update series through Add, Set and Observe (or several of them at
// once through Batch); readers obtain a consistent copy through Gather, which
// makes a Registry usable as a prometheus.Gatherer.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"telesim/internal/core"
)

// Kind is the type of a metric family.
type Kind int

const (
	Counter Kind = iota
	Gauge
	Histogram
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Histogram:
		return "histogram"
	}
	return "unknown"
}

var (
	// ErrUnknownFamily is returned when a metric name has not been declared.
	ErrUnknownFamily = errors.New("unknown metric family")
	// ErrShapeMismatch is returned when a family is redeclared differently or
	// updated with an operation its kind does not support.
	ErrShapeMismatch = errors.New("metric shape mismatch")
	// ErrLabelValue is returned for label values outside a label's domain.
	ErrLabelValue = errors.New("label value outside domain")
	// ErrInvalidValue is returned for negative or fractional counter
	// increments and NaN observations.
	ErrInvalidValue = errors.New("invalid metric value")
)

// Desc declares a metric family.
type Desc struct {
	Name   string
	Help   string
	Kind   Kind
	Labels []string
	// Domains lists the allowed values per label name. A label without an
	// entry accepts any value.
	Domains map[string][]string
	// Buckets are the ascending upper bounds of a histogram, without +Inf.
	Buckets []float64
}

type family struct {
	desc    Desc
	domains map[string]map[string]struct{}
	series  map[string]*series
}

type series struct {
	values  []string // label values in declaration order
	value   float64
	counts  []uint64 // per bucket, non-cumulative
	sum     float64
	count   uint64
	updated time.Time
}

// Registry holds every declared family. It is safe for concurrent use: the
// simulation driver writes while HTTP handlers and the OTLP pusher gather.
type Registry struct {
	mu       sync.RWMutex
	clock    core.Clock
	families map[string]*family
}

// NewRegistry creates an empty registry stamping series with clock.
func NewRegistry(clock core.Clock) *Registry {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Registry{
		clock:    clock,
		families: make(map[string]*family),
	}
}

// Declare registers a family. Declaring the same family twice with an
// identical shape is a no-op.
func (r *Registry) Declare(d Desc) error {
	if d.Name == "" {
		return fmt.Errorf("metrics: declare: empty name")
	}
	if d.Kind == Histogram {
		if len(d.Buckets) == 0 {
			return fmt.Errorf("metrics: declare %s: histogram needs buckets", d.Name)
		}
		for i := 1; i < len(d.Buckets); i++ {
			if d.Buckets[i] <= d.Buckets[i-1] {
				return fmt.Errorf("metrics: declare %s: buckets must be strictly ascending", d.Name)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.families[d.Name]; ok {
		if !sameShape(existing.desc, d) {
			return fmt.Errorf("metrics: declare %s: %w", d.Name, ErrShapeMismatch)
		}
		return nil
	}

	f := &family{
		desc:    d,
		domains: make(map[string]map[string]struct{}, len(d.Domains)),
		series:  make(map[string]*series),
	}
	f.desc.Labels = append([]string(nil), d.Labels...)
	f.desc.Buckets = append([]float64(nil), d.Buckets...)
	for label, values := range d.Domains {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		f.domains[label] = set
	}
	r.families[d.Name] = f
	return nil
}

func sameShape(a, b Desc) bool {
	if a.Kind != b.Kind || len(a.Labels) != len(b.Labels) || len(a.Buckets) != len(b.Buckets) {
		return false
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			return false
		}
	}
	for i := range a.Buckets {
		if a.Buckets[i] != b.Buckets[i] {
			return false
		}
	}
	return true
}

// Add increments a counter or gauge. Counter increments must be
// non-negative integers.
func (r *Registry) Add(name string, delta float64, values ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(name, delta, values)
}

// Set assigns a gauge.
func (r *Registry) Set(name string, value float64, values ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(name, value, values)
}

// Observe records a histogram sample.
func (r *Registry) Observe(name string, value float64, values ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observe(name, value, values)
}

// Batch runs fn with every update applied under a single critical section,
// so readers see either none or all of them. The first error aborts fn's
// remaining updates only if fn returns it; updates already applied stay.
func (r *Registry) Batch(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&Tx{r: r})
}

// Tx applies updates inside Batch. It must not be retained after fn returns.
type Tx struct {
	r *Registry
}

// Add is Registry.Add inside a batch.
func (tx *Tx) Add(name string, delta float64, values ...string) error {
	return tx.r.add(name, delta, values)
}

// Set is Registry.Set inside a batch.
func (tx *Tx) Set(name string, value float64, values ...string) error {
	return tx.r.set(name, value, values)
}

// Observe is Registry.Observe inside a batch.
func (tx *Tx) Observe(name string, value float64, values ...string) error {
	return tx.r.observe(name, value, values)
}

func (r *Registry) add(name string, delta float64, values []string) error {
	f, err := r.lookup(name, values)
	if err != nil {
		return err
	}
	switch f.desc.Kind {
	case Counter:
		if delta < 0 || delta != math.Trunc(delta) || math.IsInf(delta, 0) {
			return fmt.Errorf("metrics: %s: counter increment %v: %w", name, delta, ErrInvalidValue)
		}
	case Gauge:
		if math.IsNaN(delta) {
			return fmt.Errorf("metrics: %s: %w", name, ErrInvalidValue)
		}
	default:
		return fmt.Errorf("metrics: %s: add on %s: %w", name, f.desc.Kind, ErrShapeMismatch)
	}
	s := f.get(values)
	s.value += delta
	s.updated = r.clock.Now()
	return nil
}

func (r *Registry) set(name string, value float64, values []string) error {
	f, err := r.lookup(name, values)
	if err != nil {
		return err
	}
	if f.desc.Kind != Gauge {
		return fmt.Errorf("metrics: %s: set on %s: %w", name, f.desc.Kind, ErrShapeMismatch)
	}
	if math.IsNaN(value) {
		return fmt.Errorf("metrics: %s: %w", name, ErrInvalidValue)
	}
	s := f.get(values)
	s.value = value
	s.updated = r.clock.Now()
	return nil
}

func (r *Registry) observe(name string, value float64, values []string) error {
	f, err := r.lookup(name, values)
	if err != nil {
		return err
	}
	if f.desc.Kind != Histogram {
		return fmt.Errorf("metrics: %s: observe on %s: %w", name, f.desc.Kind, ErrShapeMismatch)
	}
	if math.IsNaN(value) {
		return fmt.Errorf("metrics: %s: %w", name, ErrInvalidValue)
	}
	s := f.get(values)
	// Values above the last bound only land in the implicit +Inf bucket.
	if i := sort.SearchFloat64s(f.desc.Buckets, value); i < len(s.counts) {
		s.counts[i]++
	}
	s.sum += value
	s.count++
	s.updated = r.clock.Now()
	return nil
}

func (r *Registry) lookup(name string, values []string) (*family, error) {
	f, ok := r.families[name]
	if !ok {
		return nil, fmt.Errorf("metrics: %q: %w", name, ErrUnknownFamily)
	}
	if len(values) != len(f.desc.Labels) {
		return nil, fmt.Errorf("metrics: %s: expected %d label values, got %d: %w",
			name, len(f.desc.Labels), len(values), ErrShapeMismatch)
	}
	for i, v := range values {
		label := f.desc.Labels[i]
		domain, restricted := f.domains[label]
		if !restricted {
			continue
		}
		if _, ok := domain[v]; !ok {
			return nil, fmt.Errorf("metrics: %s: %s=%q: %w", name, label, v, ErrLabelValue)
		}
	}
	return f, nil
}

func (f *family) get(values []string) *series {
	key := strings.Join(values, "\xff")
	s, ok := f.series[key]
	if !ok {
		s = &series{values: append([]string(nil), values...)}
		if f.desc.Kind == Histogram {
			s.counts = make([]uint64, len(f.desc.Buckets))
		}
		f.series[key] = s
	}
	return s
}

// Value returns the current value of a counter or gauge series, or the
// sample count of a histogram series.
func (r *Registry) Value(name string, values ...string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	if !ok {
		return 0, false
	}
	s, ok := f.series[strings.Join(values, "\xff")]
	if !ok {
		return 0, false
	}
	if f.desc.Kind == Histogram {
		return float64(s.count), true
	}
	return s.value, true
}

// Sum adds up every series of a counter or gauge family.
func (r *Registry) Sum(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	if !ok {
		return 0
	}
	var total float64
	for _, s := range f.series {
		if f.desc.Kind == Histogram {
			total += float64(s.count)
			continue
		}
		total += s.value
	}
	return total
}
