package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/plan"
)

// Feed produces the next experience each cycle. The current plan step is
// offered to the feed so the action decision can honor or override it.
type Feed interface {
	Next(step *plan.Step) needs.Experience
}

// Loop runs cycles at a fixed cadence. One experience is processed fully
// before the next is pulled; there is no concurrent mutation.
type Loop struct {
	Mind     *Mind
	Feed     Feed
	Interval time.Duration // Base cycle interval
	Speed    float64       // Multiplier: 1.0 = real-time, 0 = paused
	Running  bool
	Cycle    uint64 // Cycles processed (monotonic)

	// OnReport, when set, receives every cycle's report.
	OnReport func(cycle uint64, report CycleReport)
}

// NewLoop creates a loop with default pacing.
func NewLoop(mind *Mind, feed Feed) *Loop {
	return &Loop{
		Mind:     mind,
		Feed:     feed,
		Interval: time.Second,
		Speed:    1.0,
	}
}

// Run starts the cycle loop. Blocks until Stop is called or the context is
// canceled.
func (l *Loop) Run(ctx context.Context) {
	l.Running = true
	slog.Info("cycle loop started", "cycle", l.Cycle, "speed", l.Speed)

	for l.Running {
		if ctx.Err() != nil {
			break
		}
		if l.Speed <= 0 {
			// Paused. Sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		l.step(ctx)

		elapsed := time.Since(start)
		target := time.Duration(float64(l.Interval) / l.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	l.Running = false
	slog.Info("cycle loop stopped", "cycle", l.Cycle)
}

// Stop halts the loop after the in-flight cycle finishes.
func (l *Loop) Stop() {
	l.Running = false
}

// step pulls one experience and processes it.
func (l *Loop) step(ctx context.Context) {
	l.Cycle++
	_, step := l.Mind.Plans.CurrentStep()
	exp := l.Feed.Next(step)
	report := l.Mind.ProcessExperience(ctx, exp)
	if l.OnReport != nil {
		l.OnReport(l.Cycle, report)
	}
}
