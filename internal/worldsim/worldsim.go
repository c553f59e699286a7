// Package worldsim is a deterministic environment feed: it picks an action
// each cycle (honoring the current plan step most of the time), turns it
// into per-need satisfaction deltas with smooth noise drift, and applies the
// result to the needs state.
package worldsim

import (
	"math/rand"
	"strings"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/plan"
)

// ActionEffect maps an action phrase to the need it primarily satisfies.
type ActionEffect struct {
	Action string
	Need   string
	Gain   float64 // Base satisfaction gain when the action is taken
}

// DefaultEffects is a small action vocabulary over the default need set.
func DefaultEffects() []ActionEffect {
	return []ActionEffect{
		{Action: "eat a meal", Need: "hunger", Gain: 0.30},
		{Action: "take a nap", Need: "rest", Gain: 0.25},
		{Action: "go for a walk", Need: "rest", Gain: 0.10},
		{Action: "talk with a friend", Need: "connection", Gain: 0.25},
		{Action: "write in journal", Need: "meaning", Gain: 0.15},
		{Action: "work on a project", Need: "meaning", Gain: 0.20},
		{Action: "tidy the room", Need: "safety", Gain: 0.15},
	}
}

// Sim drives a needs.State forward cycle by cycle.
type Sim struct {
	State   *needs.State
	Effects []ActionEffect

	// How often the action decision honors the plan step versus chasing
	// the most urgent need directly.
	FollowRate float64

	// Per-cycle uniform decay pressure on all needs.
	DecayPerCycle float64

	noise opensimplex.Noise
	rng   *rand.Rand
	cycle int
	clock func() time.Time
}

// New creates a deterministic simulator over the given needs state.
func New(state *needs.State, seed int64) *Sim {
	return &Sim{
		State:         state,
		Effects:       DefaultEffects(),
		FollowRate:    0.75,
		DecayPerCycle: 0.04,
		noise:         opensimplex.NewNormalized(seed),
		rng:           rand.New(rand.NewSource(seed)),
		clock:         time.Now,
	}
}

// SetClock overrides the timestamp source for tests.
func (s *Sim) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Next implements engine.Feed: decide an action, compute its need deltas,
// apply them, and return the experience record.
func (s *Sim) Next(step *plan.Step) needs.Experience {
	s.cycle++
	s.State.Decay(s.DecayPerCycle)

	action := s.decide(step)
	deltas := s.deltasFor(action)
	s.State.Apply(deltas)

	return needs.Experience{
		ActionTaken: action,
		NeedDeltas:  deltas,
		Timestamp:   s.clock(),
	}
}

// decide honors the plan step at FollowRate, otherwise picks the action
// serving the most urgent need. With no plan it always chases urgency.
func (s *Sim) decide(step *plan.Step) string {
	if step != nil && s.rng.Float64() < s.FollowRate {
		return step.ActionHint
	}

	// Sorted iteration keeps ties deterministic.
	urgentNeed := ""
	urgentLevel := 2.0
	for _, name := range s.State.Names() {
		if level := s.State.Satisfaction(name); level < urgentLevel {
			urgentNeed, urgentLevel = name, level
		}
	}
	for _, e := range s.Effects {
		if e.Need == urgentNeed {
			return e.Action
		}
	}
	return "go for a walk"
}

// deltasFor maps an action to per-need deltas. The primary effect is
// modulated by smooth environmental drift so identical actions land
// slightly differently over time.
func (s *Sim) deltasFor(action string) map[string]float64 {
	deltas := make(map[string]float64)
	for _, e := range s.Effects {
		if actionMatches(action, e.Action) {
			drift := s.noise.Eval2(float64(s.cycle)*0.1, 0) // [0,1]
			deltas[e.Need] = e.Gain * (0.7 + 0.6*drift)
		}
	}
	return deltas
}

func actionMatches(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}
