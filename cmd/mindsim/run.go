package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talekin/mindsim/internal/api"
	"github.com/talekin/mindsim/internal/config"
	"github.com/talekin/mindsim/internal/engine"
	"github.com/talekin/mindsim/internal/goal"
	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/oracle"
	"github.com/talekin/mindsim/internal/persistence"
	"github.com/talekin/mindsim/internal/plan"
	"github.com/talekin/mindsim/internal/worldsim"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg config.Config) error {
	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Oracle ────────────────────────────────────────────────────────
	client := oracle.NewClient(cfg.OracleAPIKey)
	llm := oracle.NewLLMOracle(client)
	if llm == nil {
		slog.Warn("ANTHROPIC_API_KEY not set — oracle disabled, no goals or plans will be generated")
	} else {
		slog.Info("oracle enabled (Haiku)")
	}

	// ── Systems ───────────────────────────────────────────────────────
	goalCfg := goal.DefaultConfig()
	goalCfg.ProgressGain = cfg.ProgressGain
	goalCfg.MaxProgressPerCycle = cfg.MaxProgressPerCycle
	goalCfg.MilestoneSetback = cfg.MilestoneSetback

	var ora oracle.Oracle
	if llm != nil {
		ora = llm
	} else {
		ora = unavailableOracle{}
	}
	goals := goal.NewSystem(ora, goalCfg)
	plans := plan.NewSystem(ora, plan.DefaultConfig())
	state := needs.NewState(cfg.Needs...)

	// ── Restore saved state ───────────────────────────────────────────
	if db.HasState() {
		goalSnap, err := db.LoadGoals()
		if err != nil {
			return fmt.Errorf("load goals: %w", err)
		}
		planSnap, err := db.LoadPlans()
		if err != nil {
			return fmt.Errorf("load plans: %w", err)
		}
		goals.Restore(goalSnap)
		plans.Restore(planSnap)
		if levels, err := db.LoadNeedLevels(); err == nil && levels != nil {
			state.Restore(levels)
		}
		slog.Info("state restored",
			"goals", len(goalSnap.Goals),
			"plans", len(planSnap.Plans),
			"cycle", goalSnap.Cycle,
		)
	} else {
		slog.Info("no saved state found, starting fresh")
	}

	// ── Mind + scripted environment ───────────────────────────────────
	mind := engine.NewMind(goals, plans, state)
	mind.Personality = cfg.Personality
	sim := worldsim.New(state, cfg.Seed)

	loop := engine.NewLoop(mind, sim)
	loop.Interval = cfg.CycleInterval.Std()
	loop.Speed = cfg.Speed

	// Autosave every 50 cycles.
	loop.OnReport = func(cycle uint64, report engine.CycleReport) {
		for _, e := range report.Events {
			slog.Info("event", "category", e.Category, "description", e.Description)
		}
		if cycle%50 == 0 {
			if err := db.SaveState(goals.Snapshot(), plans.Snapshot(), state.Levels()); err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("MINDSIM_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Mind:     mind,
		Loop:     loop,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		loop.Stop()
		cancel()
	}()

	fmt.Printf("mindsim is alive: %d needs, API on http://localhost:%d/api/v1/status\n",
		len(cfg.Needs), cfg.APIPort)
	fmt.Println("Starting cycle loop... (Ctrl+C to stop)")

	loop.Run(ctx)

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveState(goals.Snapshot(), plans.Snapshot(), state.Levels()); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Loop stopped. Engine state saved.")
	return nil
}

// unavailableOracle stands in when no API key is configured: every call
// reports the unavailable condition, which each cycle recovers as a no-op.
type unavailableOracle struct{}

func (unavailableOracle) ProposeGoals(ctx context.Context, req oracle.ProposeRequest) ([]oracle.GoalProposal, error) {
	return nil, oracle.ErrUnavailable
}

func (unavailableOracle) DecomposePlan(ctx context.Context, req oracle.DecomposeRequest) ([]oracle.StepSpec, error) {
	return nil, oracle.ErrUnavailable
}

func (unavailableOracle) ConfirmMilestone(ctx context.Context, req oracle.MilestoneRequest) (oracle.MilestoneResult, error) {
	return oracle.MilestoneResult{}, oracle.ErrUnavailable
}

func (unavailableOracle) Replan(ctx context.Context, req oracle.ReplanRequest) ([]oracle.StepSpec, error) {
	return nil, oracle.ErrUnavailable
}
