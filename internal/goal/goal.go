// Package goal derives, tracks, decays, and retires motivational goals from
// an agent's unmet needs.
package goal

import (
	"time"

	"github.com/talekin/mindsim/internal/num"
)

// Horizon is the temporal scope of a goal. It governs the confidence decay
// rate and the abandonment threshold.
type Horizon string

const (
	Short Horizon = "short"
	Mid   Horizon = "mid"
	Long  Horizon = "long"
)

// DecayRate returns the confidence lost per hour for this horizon.
func (h Horizon) DecayRate() float64 {
	switch h {
	case Short:
		return 0.03
	case Mid:
		return 0.008
	default:
		return 0.002
	}
}

// AbandonThreshold returns the confidence floor below which a goal of this
// horizon is abandoned.
func (h Horizon) AbandonThreshold() float64 {
	if h == Short {
		return 0.10
	}
	return 0.05
}

// BucketCap returns the soft sub-target for active goals of this horizon.
// The caps sum to MaxGoals.
func (h Horizon) BucketCap() int {
	if h == Mid {
		return 4
	}
	return 3
}

// order returns the priority rank: short before mid before long.
func (h Horizon) order() int {
	switch h {
	case Short:
		return 0
	case Mid:
		return 1
	default:
		return 2
	}
}

// Status is a goal's lifecycle state. Transitions are one-way: active goals
// become completed or abandoned and never come back.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Goal is a motivational target derived from needs. Progress and confidence
// stay clamped to [0,1] through every mutation.
type Goal struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	Horizon            Horizon  `json:"horizon"`
	SourceNeeds        []string `json:"source_needs"`
	SourceLessons      []string `json:"source_lessons,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`

	Progress   float64 `json:"progress"`
	Confidence float64 `json:"confidence"`
	Status     Status  `json:"status"`

	CreatedAt      time.Time `json:"created_at"`
	LastProgressed time.Time `json:"last_progressed"`
	TimesAdvanced  int       `json:"times_advanced"`
	TimesRegressed int       `json:"times_regressed"`
}

// IsActive reports whether the goal is still being pursued.
func (g *Goal) IsActive() bool {
	return g.Status == StatusActive
}

// advance moves progress up and reinforces confidence by a small bounded
// amount.
func (g *Goal) advance(amount, reinforce float64, now time.Time) {
	g.Progress = num.Unit(g.Progress + amount)
	g.Confidence = num.Unit(g.Confidence + reinforce)
	g.TimesAdvanced++
	g.LastProgressed = now
}

// regress moves progress down. Confidence is untouched: setbacks make a
// goal harder, not less relevant.
func (g *Goal) regress(amount float64) {
	g.Progress = num.Unit(g.Progress - amount)
	g.TimesRegressed++
}

// decay applies linear confidence decay for the elapsed hours and reports
// whether the goal fell below its abandonment threshold.
func (g *Goal) decay(hours float64) bool {
	g.Confidence = num.Unit(g.Confidence - g.Horizon.DecayRate()*hours)
	return g.Confidence < g.Horizon.AbandonThreshold()
}

// complete marks the goal achieved.
func (g *Goal) complete() {
	g.Status = StatusCompleted
}

// abandon retires the goal without completing it.
func (g *Goal) abandon() {
	g.Status = StatusAbandoned
}

// sameNeeds reports whether the goal's source-need set equals the given set,
// ignoring order.
func (g *Goal) sameNeeds(other []string) bool {
	if len(g.SourceNeeds) != len(other) {
		return false
	}
	set := make(map[string]bool, len(g.SourceNeeds))
	for _, n := range g.SourceNeeds {
		set[n] = true
	}
	for _, n := range other {
		if !set[n] {
			return false
		}
	}
	return true
}
