package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talekin/mindsim/internal/goal"
	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/oracle"
	"github.com/talekin/mindsim/internal/plan"
)

// scriptedOracle answers every operation from fixed fixtures so cycles are
// fully deterministic.
type scriptedOracle struct {
	proposals      []oracle.GoalProposal
	proposeErr     error
	proposeCalls   int
	steps          []oracle.StepSpec
	decomposeErr   error
	decomposeCalls int
	milestone      oracle.MilestoneResult
	replanSteps    []oracle.StepSpec
	replanErr      error
}

func (s *scriptedOracle) ProposeGoals(ctx context.Context, req oracle.ProposeRequest) ([]oracle.GoalProposal, error) {
	s.proposeCalls++
	return s.proposals, s.proposeErr
}

func (s *scriptedOracle) DecomposePlan(ctx context.Context, req oracle.DecomposeRequest) ([]oracle.StepSpec, error) {
	s.decomposeCalls++
	return s.steps, s.decomposeErr
}

func (s *scriptedOracle) ConfirmMilestone(ctx context.Context, req oracle.MilestoneRequest) (oracle.MilestoneResult, error) {
	return s.milestone, nil
}

func (s *scriptedOracle) Replan(ctx context.Context, req oracle.ReplanRequest) ([]oracle.StepSpec, error) {
	return s.replanSteps, s.replanErr
}

// fakeClock hands out a fixed time that tests advance explicitly.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMind(t *testing.T) (*Mind, *scriptedOracle, *needs.State, *fakeClock) {
	t.Helper()
	stub := &scriptedOracle{
		steps: []oracle.StepSpec{
			{Description: "gather berries", ActionHint: "forage", EstimatedCycles: 2},
			{Description: "cook a meal", ActionHint: "cook", EstimatedCycles: 1},
		},
	}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	goals := goal.NewSystem(stub, goal.DefaultConfig())
	goals.SetClock(clock.Now)
	plans := plan.NewSystem(stub, plan.DefaultConfig())
	plans.SetClock(clock.Now)
	state := needs.NewState("hunger", "rest", "meaning")
	m := NewMind(goals, plans, state)
	m.SetClock(clock.Now)
	return m, stub, state, clock
}

func exp(action string, deltas map[string]float64) needs.Experience {
	return needs.Experience{ActionTaken: action, NeedDeltas: deltas, Timestamp: time.Now()}
}

func seedGoal(m *Mind, id, desc string, h goal.Horizon, confidence float64, needNames ...string) {
	snap := m.Goals.Snapshot()
	snap.Goals = append(snap.Goals, goal.Goal{
		ID:          id,
		Description: desc,
		Horizon:     h,
		SourceNeeds: needNames,
		Confidence:  confidence,
		Status:      goal.StatusActive,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	m.Goals.Restore(snap)
}

func hasEvent(r CycleReport, category, substr string) bool {
	for _, e := range r.Events {
		if e.Category == category && strings.Contains(e.Description, substr) {
			return true
		}
	}
	return false
}

func TestGenerationRunsOnInterval(t *testing.T) {
	m, stub, _, _ := newTestMind(t)
	stub.proposals = []oracle.GoalProposal{
		{Description: "stay fed", Horizon: "short", SourceNeeds: []string{"hunger"}},
	}

	for i := 0; i < 4; i++ {
		m.ProcessExperience(context.Background(), exp("wander", nil))
		assert.Equal(t, 0, stub.proposeCalls, "cycle %d", i+1)
	}
	report := m.ProcessExperience(context.Background(), exp("wander", nil))

	assert.Equal(t, 1, stub.proposeCalls)
	assert.True(t, hasEvent(report, "goal", "created: stay fed"))
}

func TestShortGoalPlansImmediately(t *testing.T) {
	m, stub, _, _ := newTestMind(t)
	stub.proposals = []oracle.GoalProposal{
		{Description: "stay fed", Horizon: "short", SourceNeeds: []string{"hunger"}},
	}

	var report CycleReport
	for i := 0; i < 5; i++ {
		report = m.ProcessExperience(context.Background(), exp("wander", nil))
	}

	assert.True(t, hasEvent(report, "plan", "created: stay fed"))
	p, step := m.Plans.CurrentStep()
	require.NotNil(t, p)
	assert.Equal(t, "gather berries", step.Description)
}

func TestLongGoalWaitsForNeedPressure(t *testing.T) {
	m, stub, state, _ := newTestMind(t)
	seedGoal(m, "g1", "find purpose", goal.Long, 0.9, "meaning")

	m.ProcessExperience(context.Background(), exp("wander", nil))
	assert.Equal(t, 0, stub.decomposeCalls)

	state.Apply(map[string]float64{"meaning": -0.6}) // below the 0.5 trigger
	m.ProcessExperience(context.Background(), exp("wander", nil))
	assert.Equal(t, 1, stub.decomposeCalls)
	assert.NotNil(t, m.Plans.PlanFor("g1"))
}

func TestPlanCompletionCreditsGoal(t *testing.T) {
	m, _, _, _ := newTestMind(t)
	seedGoal(m, "g1", "stay fed", goal.Short, 0.9, "hunger")

	m.ProcessExperience(context.Background(), exp("wander", nil)) // plan created
	require.NotNil(t, m.Plans.PlanFor("g1"))

	m.ProcessExperience(context.Background(), exp("forage", map[string]float64{"hunger": 0.1}))
	report := m.ProcessExperience(context.Background(), exp("cook", map[string]float64{"hunger": 0.1}))

	assert.True(t, hasEvent(report, "plan", "plan completed"))
	g := m.Goals.Get("g1")
	// Two advances at 0.05 each plus the 0.3 completion credit.
	assert.InDelta(t, 0.40, g.Progress, 1e-9)
	assert.Nil(t, m.Plans.PlanFor("g1"))
}

func TestReplanExhaustionPenalizesGoal(t *testing.T) {
	m, _, _, _ := newTestMind(t)
	seedGoal(m, "g1", "stay fed", goal.Short, 0.9, "hunger")
	m.ProcessExperience(context.Background(), exp("wander", nil)) // plan created
	p := m.Plans.PlanFor("g1")
	require.NotNil(t, p)
	p.TimesReplanned = 3

	// Three overrides trip the replan check; with the budget spent the plan
	// fails and the goal pays for it.
	var report CycleReport
	for i := 0; i < 3; i++ {
		report = m.ProcessExperience(context.Background(), exp("take a nap", map[string]float64{"rest": 0.05}))
	}

	assert.True(t, hasEvent(report, "plan", "replan budget exhausted"))
	assert.False(t, p.Live())
	g := m.Goals.Get("g1")
	assert.InDelta(t, 0.70, g.Confidence, 1e-9) // 0.9 − 0.2
}

func TestMilestoneCompletionDetachesPlan(t *testing.T) {
	m, stub, _, _ := newTestMind(t)
	stub.milestone = oracle.MilestoneResult{Achieved: true, Explanation: "done"}
	seedGoal(m, "g1", "stay fed", goal.Short, 0.9, "hunger")
	m.ProcessExperience(context.Background(), exp("wander", nil)) // plan created
	require.NotNil(t, m.Plans.PlanFor("g1"))

	g := m.Goals.Get("g1")
	g.Progress = 0.86
	report := m.ProcessExperience(context.Background(), exp("wander", nil))

	assert.True(t, hasEvent(report, "goal", "completed: stay fed"))
	assert.Equal(t, goal.StatusCompleted, g.Status)
	assert.Nil(t, m.Plans.PlanFor("g1"))
}

func TestDecayAppliedOncePerElapsedInterval(t *testing.T) {
	m, _, _, clock := newTestMind(t)
	seedGoal(m, "g1", "find purpose", goal.Long, 0.9, "meaning")

	clock.Advance(10 * time.Hour)
	m.ProcessExperience(context.Background(), exp("wander", nil))
	g := m.Goals.Get("g1")
	assert.InDelta(t, 0.88, g.Confidence, 1e-9) // 0.9 − 0.002×10

	// No further time passes: confidence must hold still.
	m.ProcessExperience(context.Background(), exp("wander", nil))
	assert.InDelta(t, 0.88, g.Confidence, 1e-9)
}

func TestDecayAbandonmentDetachesPlan(t *testing.T) {
	m, _, _, clock := newTestMind(t)
	seedGoal(m, "g1", "stay fed", goal.Short, 0.9, "hunger")
	m.ProcessExperience(context.Background(), exp("wander", nil)) // plan created
	p := m.Plans.PlanFor("g1")
	require.NotNil(t, p)

	clock.Advance(40 * time.Hour) // 0.9 − 0.03×40 = −0.3, well past abandonment
	report := m.ProcessExperience(context.Background(), exp("wander", nil))

	assert.True(t, hasEvent(report, "goal", "abandoned: stay fed"))
	assert.Equal(t, goal.StatusAbandoned, m.Goals.Get("g1").Status)
	assert.False(t, p.Live())
}

func TestOracleFailuresAreEventsNotErrors(t *testing.T) {
	m, stub, _, _ := newTestMind(t)
	stub.proposeErr = oracle.ErrUnavailable
	stub.decomposeErr = oracle.ErrUnavailable
	seedGoal(m, "g1", "stay fed", goal.Short, 0.9, "hunger")

	var report CycleReport
	for i := 0; i < 5; i++ {
		report = m.ProcessExperience(context.Background(), exp("wander", nil))
	}

	assert.True(t, hasEvent(report, "oracle", "goal generation skipped"))
	assert.Equal(t, goal.StatusActive, m.Goals.Get("g1").Status)
	assert.Empty(t, m.Plans.Plans())
}

func TestCurrentDirective(t *testing.T) {
	m, _, _, _ := newTestMind(t)

	step, planPrompt, goalsPrompt := m.CurrentDirective()
	assert.Nil(t, step)
	assert.Equal(t, "No active plan.", planPrompt)
	assert.Equal(t, "No goals set yet.", goalsPrompt)

	seedGoal(m, "g1", "stay fed", goal.Short, 0.9, "hunger")
	m.ProcessExperience(context.Background(), exp("wander", nil))

	step, planPrompt, goalsPrompt = m.CurrentDirective()
	require.NotNil(t, step)
	assert.Contains(t, planPrompt, "gather berries")
	assert.Contains(t, goalsPrompt, "stay fed")
}
