// Package plan decomposes active goals into ordered executable steps,
// monitors step progress, detects stuck execution, and replans within a
// bounded budget.
package plan

import (
	"time"

	"github.com/talekin/mindsim/internal/goal"
)

// StepStatus is a step's lifecycle state. Completed and failed steps are
// immutable thereafter.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one unit of a plan.
type Step struct {
	Description     string     `json:"description"`
	ActionHint      string     `json:"action_hint"`
	ExpectedOutcome string     `json:"expected_outcome"`
	EstimatedCycles int        `json:"estimated_cycles"`
	ActualCycles    int        `json:"actual_cycles"`
	Status          StepStatus `json:"status"`
	FailureReason   string     `json:"failure_reason,omitempty"`
}

// Status is a plan's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReplanned Status = "replanned"
)

// Plan is an ordered decomposition of one active goal. It references the
// goal by stable identity and carries copies of the fields it needs, never a
// pointer that could dangle when goals are pruned.
type Plan struct {
	ID              string       `json:"id"`
	GoalID          string       `json:"goal_id"`
	GoalDescription string       `json:"goal_description"`
	Horizon         goal.Horizon `json:"horizon"`
	SourceNeeds     []string     `json:"source_needs"`

	Steps            []Step    `json:"steps"`
	CurrentStepIndex int       `json:"current_step_index"`
	Status           Status    `json:"status"`
	TimesReplanned   int       `json:"times_replanned"`
	CreatedAt        time.Time `json:"created_at"`

	// Consecutive cycles the action decision ignored the current step.
	ConsecutiveOverrides int `json:"consecutive_overrides"`
}

// Live reports whether the plan is still executing. A replanned plan keeps
// running its replacement steps.
func (p *Plan) Live() bool {
	return p.Status == StatusActive || p.Status == StatusReplanned
}

// CurrentStep returns the step being executed, or nil for a terminal plan.
func (p *Plan) CurrentStep() *Step {
	if !p.Live() {
		return nil
	}
	if p.CurrentStepIndex < 0 || p.CurrentStepIndex >= len(p.Steps) {
		return nil
	}
	return &p.Steps[p.CurrentStepIndex]
}

// CompletedSteps returns the steps finished so far.
func (p *Plan) CompletedSteps() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			out = append(out, s)
		}
	}
	return out
}

// advance marks the current step completed and activates the next pending
// step. Reports whether the whole plan completed.
func (p *Plan) advance() bool {
	if step := p.CurrentStep(); step != nil {
		step.Status = StepCompleted
	}
	p.ConsecutiveOverrides = 0
	p.CurrentStepIndex++
	if p.CurrentStepIndex >= len(p.Steps) {
		p.Status = StatusCompleted
		return true
	}
	next := &p.Steps[p.CurrentStepIndex]
	next.Status = StepActive
	next.ActualCycles = 0
	return false
}

// failCurrentStep marks the active step failed with a reason.
func (p *Plan) failCurrentStep(reason string) {
	if step := p.CurrentStep(); step != nil {
		step.Status = StepFailed
		step.FailureReason = reason
	}
}
