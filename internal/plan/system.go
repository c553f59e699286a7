package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talekin/mindsim/internal/goal"
	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/oracle"
)

// Config holds the tunable constants of the planning system.
type Config struct {
	MaxActivePlans    int     // One live plan per horizon
	MaxReplans        int     // Replan budget per plan
	StuckMultiplier   float64 // actual > estimated × multiplier means stuck
	OverrideThreshold int     // Consecutive overridden cycles before replanning
	TriggerNeedLevel  float64 // Mid/long goals plan once a source need drops below this
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		MaxActivePlans:    3,
		MaxReplans:        3,
		StuckMultiplier:   2.0,
		OverrideThreshold: 3,
		TriggerNeedLevel:  0.5,
	}
}

// System owns the plan collection. Single-writer, same as the goal system.
type System struct {
	cfg    Config
	oracle oracle.Oracle
	now    func() time.Time
	plans  []*Plan
}

// NewSystem creates a planning system backed by the given oracle.
func NewSystem(o oracle.Oracle, cfg Config) *System {
	return &System{cfg: cfg, oracle: o, now: time.Now}
}

// SetClock overrides the time source for tests.
func (s *System) SetClock(now func() time.Time) {
	s.now = now
}

// Plans returns every plan regardless of status.
func (s *System) Plans() []*Plan {
	return s.plans
}

// LivePlans returns the executing plans in priority order: short horizon
// first, oldest first within a horizon.
func (s *System) LivePlans() []*Plan {
	var out []*Plan
	for _, p := range s.plans {
		if p.Live() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Horizon != out[j].Horizon {
			return horizonOrder(out[i].Horizon) < horizonOrder(out[j].Horizon)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func horizonOrder(h goal.Horizon) int {
	switch h {
	case goal.Short:
		return 0
	case goal.Mid:
		return 1
	default:
		return 2
	}
}

// PlanFor returns the live plan serving a goal, or nil.
func (s *System) PlanFor(goalID string) *Plan {
	for _, p := range s.plans {
		if p.Live() && p.GoalID == goalID {
			return p
		}
	}
	return nil
}

func (s *System) livePlanForHorizon(h goal.Horizon) *Plan {
	for _, p := range s.plans {
		if p.Live() && p.Horizon == h {
			return p
		}
	}
	return nil
}

// ShouldPlan applies the trigger policy: short-term goals plan as soon as
// created, mid/long goals only once a source need drops below the trigger
// level.
func (s *System) ShouldPlan(g *goal.Goal, model needs.Model) bool {
	if !g.IsActive() || s.PlanFor(g.ID) != nil {
		return false
	}
	if g.Horizon == goal.Short {
		return true
	}
	for _, n := range g.SourceNeeds {
		if model.Satisfaction(n) < s.cfg.TriggerNeedLevel {
			return true
		}
	}
	return false
}

// CreatePlan asks the oracle to decompose a goal into steps. A goal that
// already has a live plan, a horizon slot already taken, or a full plan
// table all make this a quiet no-op; an oracle failure is returned to the
// caller as a non-fatal condition.
func (s *System) CreatePlan(ctx context.Context, g *goal.Goal, needLevels, emotions map[string]float64, worldCtx map[string]string) (*Plan, error) {
	if s.PlanFor(g.ID) != nil {
		return nil, nil
	}
	if s.livePlanForHorizon(g.Horizon) != nil {
		return nil, nil
	}
	if len(s.LivePlans()) >= s.cfg.MaxActivePlans {
		return nil, nil
	}

	specs, err := s.oracle.DecomposePlan(ctx, oracle.DecomposeRequest{
		GoalDescription: g.Description,
		Needs:           needLevels,
		Emotions:        emotions,
		WorldContext:    worldCtx,
	})
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	p := &Plan{
		ID:              uuid.NewString(),
		GoalID:          g.ID,
		GoalDescription: g.Description,
		Horizon:         g.Horizon,
		SourceNeeds:     append([]string(nil), g.SourceNeeds...),
		Steps:           stepsFromSpecs(specs),
		Status:          StatusActive,
		CreatedAt:       s.now(),
	}
	p.Steps[0].Status = StepActive
	s.plans = append(s.plans, p)
	slog.Info("plan created", "goal", g.Description, "horizon", g.Horizon, "steps", len(p.Steps))
	return p, nil
}

func stepsFromSpecs(specs []oracle.StepSpec) []Step {
	steps := make([]Step, len(specs))
	for i, sp := range specs {
		steps[i] = Step{
			Description:     sp.Description,
			ActionHint:      sp.ActionHint,
			ExpectedOutcome: sp.ExpectedOutcome,
			EstimatedCycles: sp.EstimatedCycles,
			Status:          StepPending,
		}
	}
	return steps
}

// CurrentStep returns the active step of the highest-priority live plan,
// with its plan. Returns nils when no plan is executing.
func (s *System) CurrentStep() (*Plan, *Step) {
	for _, p := range s.LivePlans() {
		if step := p.CurrentStep(); step != nil {
			return p, step
		}
	}
	return nil, nil
}

// StepResult classifies what one cycle did to the current step.
type StepResult string

const (
	ResultNone       StepResult = ""
	ResultInProgress StepResult = "step_in_progress"
	ResultCompleted  StepResult = "step_completed"
	ResultPlanDone   StepResult = "plan_completed"
	ResultOverridden StepResult = "step_overridden"
)

// Outcome reports the effect of EvaluateStep. When Result is
// ResultPlanDone the caller credits the served goal.
type Outcome struct {
	Result StepResult
	Plan   *Plan
	GoalID string
}

// EvaluateStep folds one experience into the current step. The step
// completes when the chosen action matches its hint and the goal's source
// needs improved; a non-matching action counts as an override.
func (s *System) EvaluateStep(exp needs.Experience) Outcome {
	p, step := s.CurrentStep()
	if p == nil {
		return Outcome{Result: ResultNone}
	}

	step.ActualCycles++
	matched := actionMatches(exp.ActionTaken, step.ActionHint)
	if !matched {
		p.ConsecutiveOverrides++
		return Outcome{Result: ResultOverridden, Plan: p, GoalID: p.GoalID}
	}

	p.ConsecutiveOverrides = 0
	if exp.DeltaSum(p.SourceNeeds) <= 0 {
		// Followed the plan but the needle didn't move. Keep trying.
		return Outcome{Result: ResultInProgress, Plan: p, GoalID: p.GoalID}
	}

	if p.advance() {
		slog.Info("plan completed", "goal", p.GoalDescription)
		return Outcome{Result: ResultPlanDone, Plan: p, GoalID: p.GoalID}
	}
	return Outcome{Result: ResultCompleted, Plan: p, GoalID: p.GoalID}
}

// actionMatches does a case-insensitive bidirectional substring match
// between the chosen action and a step's action hint.
func actionMatches(action, hint string) bool {
	a := strings.ToLower(strings.TrimSpace(action))
	h := strings.ToLower(strings.TrimSpace(hint))
	if a == "" || h == "" {
		return false
	}
	return strings.Contains(a, h) || strings.Contains(h, a)
}

// CheckForReplan returns the plan whose current step is stuck or repeatedly
// overridden, with the reason, or nil when execution is healthy.
func (s *System) CheckForReplan() (*Plan, string) {
	p, step := s.CurrentStep()
	if p == nil {
		return nil, ""
	}
	if step.EstimatedCycles > 0 && float64(step.ActualCycles) > float64(step.EstimatedCycles)*s.cfg.StuckMultiplier {
		return p, "stuck: exceeded time estimate"
	}
	if p.ConsecutiveOverrides >= s.cfg.OverrideThreshold {
		return p, "repeatedly overridden by urgent needs"
	}
	return nil, ""
}

// ReplanOutcome reports the effect of a Replan call. When Exhausted is set
// the plan failed terminally and the caller penalizes the served goal.
type ReplanOutcome struct {
	Plan      *Plan
	Exhausted bool
}

// Replan replaces the remaining steps of a stuck plan with a fresh oracle
// decomposition, spending one unit of the replan budget. With the budget
// exhausted the plan fails instead — the designed terminal outcome, not an
// error. An oracle failure leaves the plan untouched.
func (s *System) Replan(ctx context.Context, p *Plan, reason string, needLevels map[string]float64, worldCtx map[string]string) (ReplanOutcome, error) {
	if p.TimesReplanned >= s.cfg.MaxReplans {
		p.failCurrentStep("replan budget exhausted: " + reason)
		p.Status = StatusFailed
		slog.Info("plan failed", "goal", p.GoalDescription, "replans", p.TimesReplanned)
		return ReplanOutcome{Plan: p, Exhausted: true}, nil
	}

	completed := make([]string, 0)
	for _, st := range p.CompletedSteps() {
		completed = append(completed, st.Description)
	}
	current := p.CurrentStep()
	failedDesc := ""
	if current != nil {
		failedDesc = current.Description
	}

	specs, err := s.oracle.Replan(ctx, oracle.ReplanRequest{
		GoalDescription: p.GoalDescription,
		CompletedSteps:  completed,
		FailedStep:      failedDesc,
		FailureReason:   reason,
		Needs:           needLevels,
		WorldContext:    worldCtx,
	})
	if err != nil {
		return ReplanOutcome{}, fmt.Errorf("replan: %w", err)
	}

	// Record the failure, then splice the new steps in after it.
	p.failCurrentStep(reason)
	p.Steps = append(p.Steps[:p.CurrentStepIndex+1], stepsFromSpecs(specs)...)
	p.CurrentStepIndex++
	p.Steps[p.CurrentStepIndex].Status = StepActive
	p.TimesReplanned++
	p.Status = StatusReplanned
	p.ConsecutiveOverrides = 0
	slog.Info("plan replanned", "goal", p.GoalDescription, "reason", reason, "replans", p.TimesReplanned)
	return ReplanOutcome{Plan: p}, nil
}

// DetachGoal fails any live plan serving the given goal. Called before a
// terminal goal is pruned so no plan holds a reference to a missing goal.
func (s *System) DetachGoal(goalID, reason string) {
	for _, p := range s.plans {
		if p.Live() && p.GoalID == goalID {
			p.failCurrentStep(reason)
			p.Status = StatusFailed
			slog.Info("plan detached", "goal", p.GoalDescription, "reason", reason)
		}
	}
}

// FormatPlanForPrompt renders the current step as a directive. It is meant
// to outrank the goal summary in the consumer's reading but stay
// overridable.
func (s *System) FormatPlanForPrompt() string {
	p, step := s.CurrentStep()
	if p == nil {
		return "No active plan."
	}
	return fmt.Sprintf(
		"Current plan step (follow this unless urgent needs override):\nGoal: %q\nStep %d of %d: %q\nSuggested action: %s",
		p.GoalDescription, p.CurrentStepIndex+1, len(p.Steps), step.Description, step.ActionHint,
	)
}

// Stats summarizes the collection by status.
type Stats struct {
	Total     int `json:"total"`
	Live      int `json:"live"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// GetStats counts plans by status.
func (s *System) GetStats() Stats {
	st := Stats{Total: len(s.plans)}
	for _, p := range s.plans {
		switch {
		case p.Live():
			st.Live++
		case p.Status == StatusCompleted:
			st.Completed++
		case p.Status == StatusFailed:
			st.Failed++
		}
	}
	return st
}
