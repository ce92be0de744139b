// Package population builds and owns the fixed set of simulated actors.
package population

import (
	"fmt"
	"math/rand/v2"
	"time"

	"telesim/internal/config"
	"telesim/internal/core"
)

// Actor is one simulated user.
type Actor struct {
	ID            string
	Type          core.ActorType
	ActivityLevel float64
	BaseActivity  float64
	Volatility    float64

	TotalSessions int
	TotalTokens   int64
	TotalCost     float64
	LastSessionAt *time.Time
}

// Population is the fixed actor set. It is owned by the simulation driver
// and is NOT safe for concurrent use; readers use Snapshot values the driver
// publishes.
type Population struct {
	actors []*Actor
}

// New builds users.Total actors. Each actor draws one uniform value and is
// assigned the first type (in core.ActorTypes order) whose cumulative
// percentage covers it; the residual goes to regular only when
// users.FallbackRegular is set.
func New(users config.UsersConfig, rng *rand.Rand) (*Population, error) {
	if users.Total <= 0 {
		return nil, fmt.Errorf("population: total must be positive, got %d", users.Total)
	}
	if len(users.Distribution) == 0 {
		return nil, fmt.Errorf("population: %w: no actor types", core.ErrDistribution)
	}

	p := &Population{actors: make([]*Actor, 0, users.Total)}
	for i := 0; i < users.Total; i++ {
		at, err := pickType(users, rng.Float64())
		if err != nil {
			return nil, err
		}
		tc := users.Distribution[string(at)]
		if len(tc.ActivityRange) != 2 {
			return nil, fmt.Errorf("population: %s activity_range needs two values", at)
		}
		lo, hi := tc.ActivityRange[0], tc.ActivityRange[1]
		base := lo + rng.Float64()*(hi-lo)

		p.actors = append(p.actors, &Actor{
			ID:            fmt.Sprintf("user_%03d", i),
			Type:          at,
			ActivityLevel: base,
			BaseActivity:  base,
			Volatility:    tc.Volatility,
		})
	}
	return p, nil
}

func pickType(users config.UsersConfig, draw float64) (core.ActorType, error) {
	var cumulative float64
	for _, at := range core.ActorTypes {
		tc, ok := users.Distribution[string(at)]
		if !ok {
			continue
		}
		cumulative += tc.Percentage
		if draw <= cumulative {
			return at, nil
		}
	}
	// Floating point sums like 0.2+0.6+0.2 can land just under 1.0.
	if cumulative >= 1.0-1e-6 {
		for i := len(core.ActorTypes) - 1; i >= 0; i-- {
			if _, ok := users.Distribution[string(core.ActorTypes[i])]; ok {
				return core.ActorTypes[i], nil
			}
		}
	}
	if users.FallbackRegular {
		if _, ok := users.Distribution[string(core.Regular)]; ok {
			return core.Regular, nil
		}
	}
	return "", fmt.Errorf("population: %w: percentages sum to %.4f", core.ErrDistribution, cumulative)
}

// Actors returns the actors in creation order. The slice is shared.
func (p *Population) Actors() []*Actor {
	return p.actors
}

// Len returns the number of actors.
func (p *Population) Len() int {
	return len(p.actors)
}

// IDs returns every actor id in creation order.
func (p *Population) IDs() []string {
	ids := make([]string, len(p.actors))
	for i, a := range p.actors {
		ids[i] = a.ID
	}
	return ids
}

// Scale multiplies every actor's activity by m and clamps immediately.
func (p *Population) Scale(m float64) {
	for _, a := range p.actors {
		a.ActivityLevel = core.ClampActivity(a.ActivityLevel * m)
	}
}

// ScaleSample multiplies the activity of int(Len*fraction) actors, sampled
// without replacement, by factor. It returns the affected actors.
func (p *Population) ScaleSample(fraction, factor float64, rng *rand.Rand) []*Actor {
	if fraction <= 0 {
		return nil
	}
	if fraction > 1 {
		fraction = 1
	}
	n := int(float64(len(p.actors)) * fraction)
	if n == 0 {
		return nil
	}

	idx := rng.Perm(len(p.actors))[:n]
	affected := make([]*Actor, 0, n)
	for _, i := range idx {
		a := p.actors[i]
		a.ActivityLevel = core.ClampActivity(a.ActivityLevel * factor)
		affected = append(affected, a)
	}
	return affected
}

// Reset restores every actor's activity to its base activity.
func (p *Population) Reset() {
	for _, a := range p.actors {
		a.ActivityLevel = a.BaseActivity
	}
}

// Snapshot is an immutable aggregate view of the population.
type Snapshot struct {
	Users         int
	ByType        map[core.ActorType]int
	AvgActivity   float64
	TotalSessions int
	TotalTokens   int64
	TotalCost     float64
	TakenAt       time.Time
}

// Snapshot aggregates the current actor state.
func (p *Population) Snapshot(now time.Time) *Snapshot {
	s := &Snapshot{
		Users:   len(p.actors),
		ByType:  make(map[core.ActorType]int, len(core.ActorTypes)),
		TakenAt: now,
	}
	var sum float64
	for _, a := range p.actors {
		s.ByType[a.Type]++
		sum += a.ActivityLevel
		s.TotalSessions += a.TotalSessions
		s.TotalTokens += a.TotalTokens
		s.TotalCost += a.TotalCost
	}
	if len(p.actors) > 0 {
		s.AvgActivity = sum / float64(len(p.actors))
	}
	return s
}
