// Package needs tracks named need satisfaction levels and the experience
// records that change them. Satisfaction values range from 0.0 (completely
// unmet) to 1.0 (fully met).
package needs

import (
	"sort"
	"time"

	"github.com/talekin/mindsim/internal/num"
)

// Model is the read surface the engine consumes. The concrete needs-decay
// behavior lives behind it so a scripted feed can stand in during tests.
type Model interface {
	// Satisfaction returns the current level of a named need in [0,1].
	// Unknown needs report 0.
	Satisfaction(name string) float64
	// Levels returns a copy of every need's current level.
	Levels() map[string]float64
}

// Experience is the per-cycle record produced by the outer loop: the action
// that was taken and the signed satisfaction delta it caused per need.
type Experience struct {
	ActionTaken string             `json:"action_taken"`
	NeedDeltas  map[string]float64 `json:"need_deltas"`
	Timestamp   time.Time          `json:"timestamp"`
}

// DeltaSum returns the signed sum of this experience's deltas restricted to
// the given need names.
func (e Experience) DeltaSum(names []string) float64 {
	var sum float64
	for _, n := range names {
		sum += e.NeedDeltas[n]
	}
	return sum
}

// State is a concrete Model: a flat set of named needs with uniform
// per-cycle decay.
type State struct {
	levels map[string]float64
}

// NewState creates a State with every named need fully satisfied.
func NewState(names ...string) *State {
	levels := make(map[string]float64, len(names))
	for _, n := range names {
		levels[n] = 1.0
	}
	return &State{levels: levels}
}

// Satisfaction returns the current level of a need, or 0 if unknown.
func (s *State) Satisfaction(name string) float64 {
	return s.levels[name]
}

// Levels returns a copy of all need levels.
func (s *State) Levels() map[string]float64 {
	out := make(map[string]float64, len(s.levels))
	for k, v := range s.levels {
		out[k] = v
	}
	return out
}

// Names returns the need names in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.levels))
	for n := range s.levels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply adds the experience's deltas to the tracked levels, clamping each
// to [0,1]. Deltas for unknown needs are ignored.
func (s *State) Apply(deltas map[string]float64) {
	for name, d := range deltas {
		if cur, ok := s.levels[name]; ok {
			s.levels[name] = num.Unit(cur + d)
		}
	}
}

// Decay lowers every need by amount, clamped at 0. The passage of time makes
// needs press harder.
func (s *State) Decay(amount float64) {
	for name, cur := range s.levels {
		s.levels[name] = num.Unit(cur - amount)
	}
}

// Overall returns the mean satisfaction across all needs.
func (s *State) Overall() float64 {
	if len(s.levels) == 0 {
		return 0
	}
	var total float64
	for _, v := range s.levels {
		total += v
	}
	return total / float64(len(s.levels))
}

// Restore overwrites the tracked levels, clamping each to [0,1].
func (s *State) Restore(levels map[string]float64) {
	s.levels = make(map[string]float64, len(levels))
	for k, v := range levels {
		s.levels[k] = num.Unit(v)
	}
}
