// Package oracle defines the reasoning service the goal and plan systems
// consult: proposing goals, decomposing them into steps, confirming
// milestones, and replanning around obstacles. All four operations sit behind
// one interface so a test double can supply deterministic fixtures.
package oracle

import (
	"context"
	"errors"
)

// Error kinds. Callers recover both locally — a failed oracle call means
// "nothing changed this cycle", never a crash.
var (
	// ErrUnavailable means the backing service could not be reached or
	// refused the request.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrMalformed means the response arrived but failed schema validation.
	ErrMalformed = errors.New("oracle response malformed")
)

// Horizon labels accepted from the oracle.
const (
	HorizonShort = "short"
	HorizonMid   = "mid"
	HorizonLong  = "long"
)

// ValidHorizon reports whether s is a recognized horizon label.
func ValidHorizon(s string) bool {
	return s == HorizonShort || s == HorizonMid || s == HorizonLong
}

// GoalProposal is one candidate goal returned by ProposeGoals.
type GoalProposal struct {
	Description        string   `json:"description"`
	Horizon            string   `json:"horizon"`
	SourceNeeds        []string `json:"source_needs"`
	RecommendedActions []string `json:"recommended_actions"`
	Reasoning          string   `json:"reasoning"`
	Confidence         float64  `json:"confidence,omitempty"` // 0 means unset
}

// StepSpec is one ordered step returned by DecomposePlan or Replan.
type StepSpec struct {
	Description     string `json:"description"`
	ActionHint      string `json:"action_hint"`
	ExpectedOutcome string `json:"expected_outcome"`
	EstimatedCycles int    `json:"estimated_cycles"`
}

// MilestoneResult is the oracle's judgment on whether a goal is achieved.
type MilestoneResult struct {
	Achieved    bool   `json:"achieved"`
	Explanation string `json:"explanation"`
}

// ProposeRequest carries the agent state the oracle needs to suggest goals.
type ProposeRequest struct {
	Needs         map[string]float64
	Emotions      map[string]float64
	Personality   map[string]float64
	Lessons       []string
	ExistingGoals []string // "[horizon] description (progress)" lines
}

// DecomposeRequest asks for a goal broken into ordered steps.
type DecomposeRequest struct {
	GoalDescription string
	Needs           map[string]float64
	Emotions        map[string]float64
	WorldContext    map[string]string
}

// MilestoneRequest asks whether a near-complete goal is meaningfully done.
type MilestoneRequest struct {
	GoalDescription  string
	Horizon          string
	RecentActions    []string
	SourceNeedLevels map[string]float64
}

// ReplanRequest asks for a fresh step sequence after a plan got stuck.
type ReplanRequest struct {
	GoalDescription string
	CompletedSteps  []string
	FailedStep      string
	FailureReason   string
	Needs           map[string]float64
	WorldContext    map[string]string
}

// Oracle is the reasoning service contract. Implementations block until a
// response or failure; the engine never continues speculatively.
type Oracle interface {
	ProposeGoals(ctx context.Context, req ProposeRequest) ([]GoalProposal, error)
	DecomposePlan(ctx context.Context, req DecomposeRequest) ([]StepSpec, error)
	ConfirmMilestone(ctx context.Context, req MilestoneRequest) (MilestoneResult, error)
	Replan(ctx context.Context, req ReplanRequest) ([]StepSpec, error)
}
