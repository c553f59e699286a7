// Package engine drives the goal/plan lifecycle: one experience is processed
// fully per cycle, in a fixed order, by a single writer.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/talekin/mindsim/internal/goal"
	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/plan"
)

// How many recent experiences are kept as context for milestone checks.
const recentWindow = 20

// Event is a notable occurrence inside one cycle.
type Event struct {
	Category    string `json:"category"` // "goal", "plan", "oracle"
	Description string `json:"description"`
}

// CycleReport is what one processed experience produced. Oracle failures
// appear here as events; they never escape as errors.
type CycleReport struct {
	Events []Event `json:"events"`
}

func (r *CycleReport) add(category, description string) {
	r.Events = append(r.Events, Event{Category: category, Description: description})
}

// Mind ties the goal and plan systems to their collaborators and processes
// experiences one at a time. No ambient globals: all cycle state lives here
// and is passed into each call.
type Mind struct {
	Goals *goal.System
	Plans *plan.System
	Needs needs.Model

	// Slowly-changing context fed into oracle prompts.
	Personality  map[string]float64
	Emotions     map[string]float64
	Lessons      []string
	WorldContext map[string]string

	recent    []needs.Experience
	lastDecay time.Time
	now       func() time.Time
}

// NewMind wires a mind together. The decay clock starts at construction so
// the first cycle decays only the time actually elapsed.
func NewMind(goals *goal.System, plans *plan.System, model needs.Model) *Mind {
	now := time.Now
	return &Mind{
		Goals:     goals,
		Plans:     plans,
		Needs:     model,
		now:       now,
		lastDecay: now(),
	}
}

// SetClock overrides the time source for tests and resets the decay clock.
func (m *Mind) SetClock(now func() time.Time) {
	m.now = now
	m.lastDecay = now()
}

// ProcessExperience runs one full cycle: progress update, milestone checks,
// step evaluation, replan checks, periodic goal generation and plan
// triggers, then elapsed-time decay. The next experience must not be fed in
// until this returns.
func (m *Mind) ProcessExperience(ctx context.Context, exp needs.Experience) CycleReport {
	var report CycleReport

	// 1. Goal progress from need deltas.
	for _, g := range m.Goals.UpdateProgress(exp) {
		report.add("goal", "advanced: "+g.Description)
	}

	m.recent = append(m.recent, exp)
	if len(m.recent) > recentWindow {
		m.recent = m.recent[len(m.recent)-recentWindow:]
	}

	// 2. Milestone confirmation for goals near completion.
	for _, out := range m.Goals.CheckMilestones(ctx, m.recent, m.Needs) {
		switch {
		case out.Err != nil:
			report.add("oracle", "milestone check skipped: "+out.Err.Error())
		case out.Achieved:
			report.add("goal", "completed: "+out.Goal.Description)
			m.Plans.DetachGoal(out.Goal.ID, "goal completed")
		default:
			report.add("goal", "milestone rejected: "+out.Goal.Description)
		}
	}

	// 3. Plan step evaluation against the chosen action.
	outcome := m.Plans.EvaluateStep(exp)
	switch outcome.Result {
	case plan.ResultCompleted:
		report.add("plan", "step completed: "+outcome.Plan.GoalDescription)
	case plan.ResultPlanDone:
		m.Goals.ApplyPlanCompletion(outcome.GoalID)
		report.add("plan", "plan completed: "+outcome.Plan.GoalDescription)
	case plan.ResultOverridden:
		report.add("plan", "step overridden: "+outcome.Plan.GoalDescription)
	}

	// 4. Stuck detection and bounded replanning.
	if stuck, reason := m.Plans.CheckForReplan(); stuck != nil {
		res, err := m.Plans.Replan(ctx, stuck, reason, m.Needs.Levels(), m.WorldContext)
		switch {
		case err != nil:
			report.add("oracle", "replan skipped: "+err.Error())
		case res.Exhausted:
			m.Goals.ApplyPlanFailure(stuck.GoalID)
			report.add("plan", "plan failed (replan budget exhausted): "+stuck.GoalDescription)
		default:
			report.add("plan", "replanned: "+stuck.GoalDescription)
		}
	}

	// 5. Periodic goal generation, then plan triggers, on the fresh state.
	if m.Goals.ShouldGenerate() {
		created, err := m.Goals.GenerateGoals(ctx, m.Needs.Levels(), m.Emotions, m.Personality, m.Lessons)
		if err != nil {
			report.add("oracle", "goal generation skipped: "+err.Error())
		}
		for _, g := range created {
			report.add("goal", "created: "+g.Description)
		}
	}
	for _, g := range m.Goals.Active() {
		if !m.Plans.ShouldPlan(g, m.Needs) {
			continue
		}
		p, err := m.Plans.CreatePlan(ctx, g, m.Needs.Levels(), m.Emotions, m.WorldContext)
		if err != nil {
			report.add("oracle", "plan creation skipped: "+err.Error())
		} else if p != nil {
			report.add("plan", "created: "+p.GoalDescription)
		}
	}

	// 6. Elapsed-time confidence decay, applied exactly once per interval.
	now := m.now()
	if hours := now.Sub(m.lastDecay).Hours(); hours > 0 {
		for _, g := range m.Goals.DecayAllGoals(hours) {
			m.Plans.DetachGoal(g.ID, "goal abandoned")
			report.add("goal", "abandoned: "+g.Description)
		}
	}
	m.lastDecay = now

	// 7. Retention: prune old terminal goals, detaching plans first.
	for _, g := range m.Goals.PruneTerminal() {
		m.Plans.DetachGoal(g.ID, "goal pruned")
	}

	if len(report.Events) > 0 {
		slog.Debug("cycle processed", "action", exp.ActionTaken, "events", len(report.Events))
	}
	return report
}

// CurrentDirective returns the consumer-facing surfaces: the active step (or
// nil), the plan directive, and the goal summary.
func (m *Mind) CurrentDirective() (*plan.Step, string, string) {
	_, step := m.Plans.CurrentStep()
	return step, m.Plans.FormatPlanForPrompt(), m.Goals.FormatGoalsForPrompt()
}
