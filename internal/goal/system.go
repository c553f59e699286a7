package goal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/num"
	"github.com/talekin/mindsim/internal/oracle"
)

// Config holds the tunable constants of the goal system. The progress
// mapping and milestone setback are deliberate policy knobs.
type Config struct {
	MaxGoals           int     // Total active goals across horizons
	GenerationInterval int     // Experiences between generation attempts
	MilestoneThreshold float64 // Progress level that triggers a milestone check

	ProgressGain        float64 // Need-delta sum → progress delta multiplier
	MaxProgressPerCycle float64 // Ceiling on progress movement in one cycle
	ConfidenceReinforce float64 // Confidence bump when a goal advances
	MilestoneSetback    float64 // Progress reduction when the oracle rejects a milestone

	RetainTerminal int // Completed/abandoned goals kept for audit
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		MaxGoals:            10,
		GenerationInterval:  5,
		MilestoneThreshold:  0.85,
		ProgressGain:        0.5,
		MaxProgressPerCycle: 0.25,
		ConfidenceReinforce: 0.05,
		MilestoneSetback:    0.15,
		RetainTerminal:      50,
	}
}

// System owns the goal collection. It is single-writer: only the cycle
// driver mutates it, readers use the formatting and query methods.
type System struct {
	cfg    Config
	oracle oracle.Oracle
	now    func() time.Time

	goals           []*Goal
	sinceGeneration int
	cycle           uint64

	// Milestone idempotence: a second check in the same cycle replays the
	// cached outcome instead of consulting the oracle again.
	milestoneCycle   uint64
	milestoneChecked bool
	milestoneCache   []MilestoneOutcome
}

// NewSystem creates a goal system backed by the given oracle.
func NewSystem(o oracle.Oracle, cfg Config) *System {
	return &System{cfg: cfg, oracle: o, now: time.Now}
}

// SetClock overrides the time source. Tests use this for deterministic
// timestamps.
func (s *System) SetClock(now func() time.Time) {
	s.now = now
}

// Goals returns every goal regardless of status.
func (s *System) Goals() []*Goal {
	return s.goals
}

// Get returns the goal with the given ID, or nil.
func (s *System) Get(id string) *Goal {
	for _, g := range s.goals {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Active returns the active goals in collection order.
func (s *System) Active() []*Goal {
	var out []*Goal
	for _, g := range s.goals {
		if g.IsActive() {
			out = append(out, g)
		}
	}
	return out
}

// ShouldGenerate reports whether enough experiences accumulated since the
// last generation attempt.
func (s *System) ShouldGenerate() bool {
	return s.sinceGeneration >= s.cfg.GenerationInterval
}

// GenerateGoals asks the oracle for up to three new goals and admits the
// ones that survive the duplicate heuristic and bucket caps. An oracle
// failure leaves the collection untouched and is returned to the caller as a
// non-fatal condition.
func (s *System) GenerateGoals(ctx context.Context, needLevels, emotions, personality map[string]float64, lessons []string) ([]*Goal, error) {
	s.sinceGeneration = 0

	existing := make([]string, 0, len(s.goals))
	for _, g := range s.Active() {
		existing = append(existing, fmt.Sprintf("[%s] %s (progress %.0f%%)", g.Horizon, g.Description, g.Progress*100))
	}

	proposals, err := s.oracle.ProposeGoals(ctx, oracle.ProposeRequest{
		Needs:         needLevels,
		Emotions:      emotions,
		Personality:   personality,
		Lessons:       lessons,
		ExistingGoals: existing,
	})
	if err != nil {
		return nil, fmt.Errorf("generate goals: %w", err)
	}

	var created []*Goal
	for _, p := range proposals {
		if g := s.admit(p); g != nil {
			created = append(created, g)
		}
	}
	return created, nil
}

// admit applies the duplicate heuristic and bucket policy to one proposal.
// Returns the created goal, or nil if the candidate was rejected.
func (s *System) admit(p oracle.GoalProposal) *Goal {
	horizon := Horizon(p.Horizon)
	confidence := p.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	for _, g := range s.Active() {
		if strings.EqualFold(g.Description, p.Description) {
			slog.Debug("goal rejected: duplicate description", "description", p.Description)
			return nil
		}
		if g.Horizon == horizon && g.Confidence > 0.5 && g.sameNeeds(p.SourceNeeds) {
			slog.Debug("goal rejected: duplicate intent", "description", p.Description, "horizon", horizon)
			return nil
		}
	}

	// Bucket cap: evict the weakest incumbent only when the candidate is
	// strictly stronger, otherwise discard the candidate.
	if bucket := s.activeInBucket(horizon); len(bucket) >= horizon.BucketCap() {
		victim := weakest(bucket)
		if confidence <= victim.Confidence {
			slog.Debug("goal discarded: bucket full", "description", p.Description, "horizon", horizon)
			return nil
		}
		victim.abandon()
		slog.Info("goal evicted", "description", victim.Description, "horizon", horizon, "confidence", victim.Confidence)
	}
	if len(s.Active()) >= s.cfg.MaxGoals {
		return nil
	}

	now := s.now()
	g := &Goal{
		ID:                 uuid.NewString(),
		Description:        p.Description,
		Horizon:            horizon,
		SourceNeeds:        p.SourceNeeds,
		RecommendedActions: p.RecommendedActions,
		Confidence:         confidence,
		Status:             StatusActive,
		CreatedAt:          now,
		LastProgressed:     now,
	}
	s.goals = append(s.goals, g)
	slog.Info("goal created", "description", g.Description, "horizon", g.Horizon, "needs", g.SourceNeeds)
	return g
}

func (s *System) activeInBucket(h Horizon) []*Goal {
	var out []*Goal
	for _, g := range s.Active() {
		if g.Horizon == h {
			out = append(out, g)
		}
	}
	return out
}

// weakest returns the lowest-confidence goal, breaking ties toward the
// oldest CreatedAt.
func weakest(goals []*Goal) *Goal {
	victim := goals[0]
	for _, g := range goals[1:] {
		if g.Confidence < victim.Confidence ||
			(g.Confidence == victim.Confidence && g.CreatedAt.Before(victim.CreatedAt)) {
			victim = g
		}
	}
	return victim
}

// UpdateProgress folds one experience into every active goal: a positive
// delta sum over a goal's source needs advances it, a negative sum regresses
// it. Returns the goals that advanced.
func (s *System) UpdateProgress(exp needs.Experience) []*Goal {
	s.cycle++
	s.sinceGeneration++

	var advanced []*Goal
	for _, g := range s.goals {
		if !g.IsActive() {
			continue
		}
		sum := exp.DeltaSum(g.SourceNeeds)
		switch {
		case sum > 0:
			g.advance(s.progressDelta(sum), s.cfg.ConfidenceReinforce, s.now())
			advanced = append(advanced, g)
		case sum < 0:
			g.regress(s.progressDelta(-sum))
		}
	}
	return advanced
}

// progressDelta maps a need-delta sum to a progress movement: bounded linear
// so one cycle can never move progress by more than the configured ceiling.
func (s *System) progressDelta(sum float64) float64 {
	return num.Clamp(sum*s.cfg.ProgressGain, 0, s.cfg.MaxProgressPerCycle)
}

// MilestoneOutcome records one milestone check result.
type MilestoneOutcome struct {
	Goal        *Goal
	Achieved    bool
	Explanation string
	Err         error // non-nil when the oracle call failed (check skipped)
}

// CheckMilestones asks the oracle to confirm every active goal whose
// progress crossed the milestone threshold. Confirmed goals complete;
// rejected ones lose a fixed amount of progress and keep their confidence.
// Within one cycle the check is idempotent: a repeat call replays the cached
// outcome without new oracle traffic.
func (s *System) CheckMilestones(ctx context.Context, recent []needs.Experience, model needs.Model) []MilestoneOutcome {
	if s.milestoneChecked && s.milestoneCycle == s.cycle {
		return s.milestoneCache
	}

	var outcomes []MilestoneOutcome
	for _, g := range s.goals {
		if !g.IsActive() || g.Progress < s.cfg.MilestoneThreshold {
			continue
		}

		levels := make(map[string]float64, len(g.SourceNeeds))
		for _, n := range g.SourceNeeds {
			levels[n] = model.Satisfaction(n)
		}

		result, err := s.oracle.ConfirmMilestone(ctx, oracle.MilestoneRequest{
			GoalDescription:  g.Description,
			Horizon:          string(g.Horizon),
			RecentActions:    relatedActions(g, recent),
			SourceNeedLevels: levels,
		})
		if err != nil {
			slog.Warn("milestone check failed", "goal", g.Description, "error", err)
			outcomes = append(outcomes, MilestoneOutcome{Goal: g, Err: err})
			continue
		}

		if result.Achieved {
			g.complete()
			slog.Info("goal completed", "description", g.Description, "explanation", result.Explanation)
		} else {
			g.Progress = num.Unit(g.Progress - s.cfg.MilestoneSetback)
			slog.Info("milestone rejected", "description", g.Description, "progress", g.Progress)
		}
		outcomes = append(outcomes, MilestoneOutcome{Goal: g, Achieved: result.Achieved, Explanation: result.Explanation})
	}

	s.milestoneChecked = true
	s.milestoneCycle = s.cycle
	s.milestoneCache = outcomes
	return outcomes
}

// relatedActions summarizes the recent experiences that touched a goal's
// source needs, most recent last, capped at five.
func relatedActions(g *Goal, recent []needs.Experience) []string {
	var out []string
	for _, e := range recent {
		if sum := e.DeltaSum(g.SourceNeeds); sum != 0 {
			out = append(out, fmt.Sprintf("%s (needs Δ %+.2f)", e.ActionTaken, sum))
		}
	}
	if len(out) > 5 {
		out = out[len(out)-5:]
	}
	return out
}

// DecayAllGoals applies linear confidence decay for the elapsed hours and
// abandons goals that fall below their horizon's threshold. Decay is
// composable: two calls for h1 and h2 equal one call for h1+h2, up to
// clamping at the abandonment boundary. Returns the goals abandoned.
func (s *System) DecayAllGoals(hours float64) []*Goal {
	if hours <= 0 {
		return nil
	}
	var abandoned []*Goal
	for _, g := range s.goals {
		if !g.IsActive() {
			continue
		}
		if g.decay(hours) {
			g.abandon()
			abandoned = append(abandoned, g)
			slog.Info("goal abandoned", "description", g.Description, "horizon", g.Horizon, "confidence", g.Confidence)
		}
	}
	return abandoned
}

// PruneTerminal drops the oldest terminal goals beyond the retention cap and
// returns the removed ones. The caller must detach or fail any plan
// referencing a removed goal before calling this.
func (s *System) PruneTerminal() []*Goal {
	var terminal []*Goal
	for _, g := range s.goals {
		if !g.IsActive() {
			terminal = append(terminal, g)
		}
	}
	excess := len(terminal) - s.cfg.RetainTerminal
	if excess <= 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].CreatedAt.Before(terminal[j].CreatedAt)
	})
	drop := make(map[string]bool, excess)
	for _, g := range terminal[:excess] {
		drop[g.ID] = true
	}

	kept := s.goals[:0]
	var removed []*Goal
	for _, g := range s.goals {
		if drop[g.ID] {
			removed = append(removed, g)
		} else {
			kept = append(kept, g)
		}
	}
	s.goals = kept
	return removed
}

// ApplyPlanCompletion credits a goal when a plan serving it ran to
// completion.
func (s *System) ApplyPlanCompletion(goalID string) {
	if g := s.Get(goalID); g != nil && g.IsActive() {
		g.advance(0.3, 0, s.now())
	}
}

// ApplyPlanFailure penalizes a goal whose plan exhausted its replan budget.
func (s *System) ApplyPlanFailure(goalID string) {
	if g := s.Get(goalID); g != nil && g.IsActive() {
		g.Confidence = num.Unit(g.Confidence - 0.2)
	}
}

// FormatGoalsForPrompt renders the active goals in priority order: short
// horizon first, then mid, then long, descending confidence within a
// horizon.
func (s *System) FormatGoalsForPrompt() string {
	active := s.Active()
	if len(active) == 0 {
		return "No goals set yet."
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Horizon != active[j].Horizon {
			return active[i].Horizon.order() < active[j].Horizon.order()
		}
		return active[i].Confidence > active[j].Confidence
	})

	var b strings.Builder
	for _, g := range active {
		fmt.Fprintf(&b, "- [%s] %s (progress %.0f%%, confidence %.0f%%",
			g.Horizon, g.Description, g.Progress*100, g.Confidence*100)
		if g.TimesAdvanced > 0 {
			fmt.Fprintf(&b, ", last progressed %s", humanize.Time(g.LastProgressed))
		}
		b.WriteString(")")
		if len(g.RecommendedActions) > 0 {
			n := len(g.RecommendedActions)
			if n > 3 {
				n = 3
			}
			fmt.Fprintf(&b, " -> %s", strings.Join(g.RecommendedActions[:n], ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Stats summarizes the collection by status.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Abandoned int `json:"abandoned"`
}

// GetStats counts goals by status.
func (s *System) GetStats() Stats {
	st := Stats{Total: len(s.goals)}
	for _, g := range s.goals {
		switch g.Status {
		case StatusActive:
			st.Active++
		case StatusCompleted:
			st.Completed++
		case StatusAbandoned:
			st.Abandoned++
		}
	}
	return st
}
