// Package core defines the types shared by every simulation component.
package core

import (
	"errors"
	"fmt"
)

// ActorType classifies a simulated user.
type ActorType string

const (
	Power   ActorType = "power"
	Regular ActorType = "regular"
	Idle    ActorType = "idle"
)

// ActorTypes lists the actor types in the fixed order used for cumulative
// type assignment and for rendering per-type series.
var ActorTypes = []ActorType{Power, Regular, Idle}

// ParseActorType returns the ActorType named by s.
func ParseActorType(s string) (ActorType, error) {
	switch ActorType(s) {
	case Power, Regular, Idle:
		return ActorType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActorType, s)
}

// Activity bounds shared by the activity model and the scenario timeline.
const (
	MinActivity = 0.1
	MaxActivity = 5.0
)

// ClampActivity bounds an activity level to [MinActivity, MaxActivity].
func ClampActivity(v float64) float64 {
	if v < MinActivity {
		return MinActivity
	}
	if v > MaxActivity {
		return MaxActivity
	}
	return v
}

var (
	// ErrUnknownActorType is returned for actor types outside power/regular/idle.
	ErrUnknownActorType = errors.New("unknown actor type")
	// ErrUnknownScenario is returned when a scenario name is not configured.
	ErrUnknownScenario = errors.New("unknown scenario")
	// ErrUnknownEvent is returned for timeline events with an unsupported type.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrInvalidTime is returned when a timeline time value cannot be parsed.
	ErrInvalidTime = errors.New("invalid time value")
	// ErrDistribution is returned when actor type percentages do not cover the unit interval.
	ErrDistribution = errors.New("invalid type distribution")
)
