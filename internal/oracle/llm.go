// LLM-backed oracle — builds prompts from agent state, extracts the JSON
// payload from the model's reply, and validates it into typed results.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LLMOracle implements Oracle on top of the Haiku client.
type LLMOracle struct {
	client *Client
}

// NewLLMOracle wraps a client. Returns nil if the client is disabled.
func NewLLMOracle(client *Client) *LLMOracle {
	if !client.Enabled() {
		return nil
	}
	return &LLMOracle{client: client}
}

// ProposeGoals asks for up to three new goals across time horizons.
func (o *LLMOracle) ProposeGoals(ctx context.Context, req ProposeRequest) ([]GoalProposal, error) {
	system := `You are helping a virtual person set meaningful goals based on their current inner state.

Short-term goals: immediate actions driven by urgent needs.
Mid-term goals: sustained effort driven by social and esteem needs.
Long-term goals: deep aspirations driven by meaning and self-actualization.

Respond ONLY with a JSON array of 0-3 goal objects. Each object must have:
- "description": clear goal statement
- "horizon": one of "short", "mid", "long"
- "source_needs": list of need names motivating this goal
- "recommended_actions": list of 2-3 actions that advance this goal
- "reasoning": one sentence explaining why`

	var b strings.Builder
	b.WriteString("Current needs (name: satisfaction):\n")
	writeLevels(&b, req.Needs)
	if len(req.Emotions) > 0 {
		b.WriteString("\nCurrent emotions:\n")
		writeLevels(&b, req.Emotions)
	}
	if len(req.Personality) > 0 {
		b.WriteString("\nPersonality traits:\n")
		writeLevels(&b, req.Personality)
	}
	writeList(&b, "\nLessons learned:", req.Lessons)
	writeList(&b, "\nExisting active goals (avoid duplicates):", req.ExistingGoals)
	b.WriteString("\nWhat new goals should this person pursue? Respond with the JSON array.")

	text, err := o.client.Complete(ctx, system, b.String(), 600)
	if err != nil {
		return nil, fmt.Errorf("propose goals: %w", err)
	}

	raw, err := extractJSON(text, '[', ']')
	if err != nil {
		return nil, fmt.Errorf("propose goals: %w", err)
	}
	var proposals []GoalProposal
	if err := json.Unmarshal([]byte(raw), &proposals); err != nil {
		return nil, fmt.Errorf("propose goals: %w: %v", ErrMalformed, err)
	}
	return ValidateProposals(proposals)
}

// DecomposePlan asks for a goal broken into 2-6 sequential steps.
func (o *LLMOracle) DecomposePlan(ctx context.Context, req DecomposeRequest) ([]StepSpec, error) {
	system := `You are helping a virtual person create a step-by-step plan to achieve a goal.

Decompose the goal into 2-6 sequential steps. Each step is one concrete
action. Think about prerequisites: what must happen before later steps can
succeed.

Respond ONLY with a JSON object holding a "steps" array. Each step must have:
- "description": what to do
- "action_hint": a short action phrase the person should take
- "expected_outcome": what success looks like
- "estimated_cycles": how many simulation cycles this step should take (1-5)`

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nCurrent needs (name: satisfaction):\n", req.GoalDescription)
	writeLevels(&b, req.Needs)
	if len(req.Emotions) > 0 {
		b.WriteString("\nCurrent emotions:\n")
		writeLevels(&b, req.Emotions)
	}
	writeContext(&b, req.WorldContext)
	b.WriteString("\nRespond with the JSON object.")

	text, err := o.client.Complete(ctx, system, b.String(), 700)
	if err != nil {
		return nil, fmt.Errorf("decompose plan: %w", err)
	}
	steps, err := parseSteps(text)
	if err != nil {
		return nil, fmt.Errorf("decompose plan: %w", err)
	}
	return steps, nil
}

// ConfirmMilestone asks whether a near-complete goal is meaningfully done.
func (o *LLMOracle) ConfirmMilestone(ctx context.Context, req MilestoneRequest) (MilestoneResult, error) {
	system := `A virtual person has been pursuing a goal. Determine if it has been
meaningfully achieved, considering progress relative to the goal's scope.

Respond ONLY with a JSON object:
- "achieved": true or false
- "explanation": brief reason`

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nHorizon: %s\n", req.GoalDescription, req.Horizon)
	writeList(&b, "\nRecent related actions:", req.RecentActions)
	b.WriteString("\nCurrent satisfaction of the needs behind this goal:\n")
	writeLevels(&b, req.SourceNeedLevels)
	b.WriteString("\nHas this goal been meaningfully achieved? Respond with the JSON object.")

	text, err := o.client.Complete(ctx, system, b.String(), 300)
	if err != nil {
		return MilestoneResult{}, fmt.Errorf("confirm milestone: %w", err)
	}

	raw, err := extractJSON(text, '{', '}')
	if err != nil {
		return MilestoneResult{}, fmt.Errorf("confirm milestone: %w", err)
	}
	var result MilestoneResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return MilestoneResult{}, fmt.Errorf("confirm milestone: %w: %v", ErrMalformed, err)
	}
	return result, nil
}

// Replan asks for a fresh step sequence working around a failed step.
func (o *LLMOracle) Replan(ctx context.Context, req ReplanRequest) ([]StepSpec, error) {
	system := `A virtual person's plan hit an obstacle. Help them replan from their
current state. The new plan should work around the obstacle that caused the
failure. Use 2-6 steps.

Respond ONLY with a JSON object holding a "steps" array. Each step must have:
- "description": what to do
- "action_hint": a short action phrase
- "expected_outcome": what success looks like
- "estimated_cycles": how many cycles (1-5)`

	var b strings.Builder
	fmt.Fprintf(&b, "Original goal: %s\n", req.GoalDescription)
	writeList(&b, "\nSteps completed so far:", req.CompletedSteps)
	fmt.Fprintf(&b, "\nFailed step: %s\nFailure reason: %s\n", req.FailedStep, req.FailureReason)
	b.WriteString("\nCurrent needs (name: satisfaction):\n")
	writeLevels(&b, req.Needs)
	writeContext(&b, req.WorldContext)
	b.WriteString("\nRespond with the JSON object.")

	text, err := o.client.Complete(ctx, system, b.String(), 700)
	if err != nil {
		return nil, fmt.Errorf("replan: %w", err)
	}
	steps, err := parseSteps(text)
	if err != nil {
		return nil, fmt.Errorf("replan: %w", err)
	}
	return steps, nil
}

// parseSteps extracts the {"steps": [...]} payload from a model reply.
func parseSteps(text string) ([]StepSpec, error) {
	raw, err := extractJSON(text, '{', '}')
	if err != nil {
		return nil, err
	}
	var payload struct {
		Steps []StepSpec `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ValidateSteps(payload.Steps)
}

// extractJSON finds the outermost open..close span in a model reply (the LLM
// might wrap the payload in explanation text).
func extractJSON(text string, open, close byte) (string, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: no JSON payload found in response", ErrMalformed)
	}
	return text[start : end+1], nil
}

func writeLevels(b *strings.Builder, levels map[string]float64) {
	names := make([]string, 0, len(levels))
	for n := range levels {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(b, "- %s: %.0f%%\n", n, levels[n]*100)
	}
}

func writeList(b *strings.Builder, header string, items []string) {
	b.WriteString(header + "\n")
	if len(items) == 0 {
		b.WriteString("- none yet\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func writeContext(b *strings.Builder, ctx map[string]string) {
	if len(ctx) == 0 {
		return
	}
	b.WriteString("\nWorld context:\n")
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, ctx[k])
	}
}
