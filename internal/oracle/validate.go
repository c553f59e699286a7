package oracle

import (
	"fmt"

	"github.com/talekin/mindsim/internal/num"
)

// Validation limits. Numeric fields outside their range are clamped;
// structurally required fields that are missing make the whole response
// malformed.
const (
	MaxProposals = 3
	MinSteps     = 2
	MaxSteps     = 6
	MinCycles    = 1
	MaxCycles    = 5
)

// ValidateProposals checks a proposal list against the schema, clamping
// numeric fields and capping the list at MaxProposals. An empty list is
// valid (the oracle may decline to propose).
func ValidateProposals(proposals []GoalProposal) ([]GoalProposal, error) {
	if len(proposals) > MaxProposals {
		proposals = proposals[:MaxProposals]
	}
	for i := range proposals {
		p := &proposals[i]
		if p.Description == "" {
			return nil, fmt.Errorf("%w: proposal %d missing description", ErrMalformed, i)
		}
		if !ValidHorizon(p.Horizon) {
			return nil, fmt.Errorf("%w: proposal %d has horizon %q", ErrMalformed, i, p.Horizon)
		}
		if len(p.SourceNeeds) == 0 {
			return nil, fmt.Errorf("%w: proposal %d has no source needs", ErrMalformed, i)
		}
		p.Confidence = num.Unit(p.Confidence)
	}
	return proposals, nil
}

// ValidateSteps checks a step list against the schema. The list must hold
// MinSteps to MaxSteps entries; estimated cycle counts clamp to
// [MinCycles, MaxCycles].
func ValidateSteps(steps []StepSpec) ([]StepSpec, error) {
	if len(steps) < MinSteps || len(steps) > MaxSteps {
		return nil, fmt.Errorf("%w: got %d steps, want %d-%d", ErrMalformed, len(steps), MinSteps, MaxSteps)
	}
	for i := range steps {
		s := &steps[i]
		if s.Description == "" {
			return nil, fmt.Errorf("%w: step %d missing description", ErrMalformed, i)
		}
		if s.ActionHint == "" {
			return nil, fmt.Errorf("%w: step %d missing action hint", ErrMalformed, i)
		}
		s.EstimatedCycles = num.Clamp(s.EstimatedCycles, MinCycles, MaxCycles)
	}
	return steps, nil
}
