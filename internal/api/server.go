// Package api provides the HTTP API for observing the engine.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talekin/mindsim/internal/engine"
	"github.com/talekin/mindsim/internal/goal"
	"github.com/talekin/mindsim/internal/plan"
)

// Server serves the engine state over HTTP.
type Server struct {
	Mind     *engine.Mind
	Loop     *engine.Loop
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	started time.Time
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.started = time.Now()
	adminLimiter := NewRateLimiter(30, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only — anyone can check in on the mind).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/goals", s.handleGoals)
	mux.HandleFunc("/api/v1/plans", s.handlePlans)
	mux.HandleFunc("/api/v1/directive", s.handleDirective)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", Limit(adminLimiter, s.adminOnly(s.handleSpeed)))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// handleStatus returns cycle counters, uptime, and stats by status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"cycle":       s.Loop.Cycle,
		"speed":       s.Loop.Speed,
		"uptime":      humanize.Time(s.started),
		"goal_stats":  s.Mind.Goals.GetStats(),
		"plan_stats":  s.Mind.Plans.GetStats(),
		"need_levels": s.Mind.Needs.Levels(),
	})
}

// handleGoals returns active goals, or every goal with ?all=1.
func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	var goals []*goal.Goal
	if r.URL.Query().Get("all") == "1" {
		goals = s.Mind.Goals.Goals()
	} else {
		goals = s.Mind.Goals.Active()
	}
	writeJSON(w, goals)
}

// handlePlans returns live plans, or every plan with ?all=1.
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	var plans []*plan.Plan
	if r.URL.Query().Get("all") == "1" {
		plans = s.Mind.Plans.Plans()
	} else {
		plans = s.Mind.Plans.LivePlans()
	}
	writeJSON(w, plans)
}

// handleDirective returns the consumer-facing surfaces: the current step and
// the formatted goal and plan summaries.
func (s *Server) handleDirective(w http.ResponseWriter, r *http.Request) {
	step, planPrompt, goalsPrompt := s.Mind.CurrentDirective()
	writeJSON(w, map[string]any{
		"current_step": step,
		"plan_prompt":  planPrompt,
		"goals_prompt": goalsPrompt,
	})
}

// handleSpeed sets the loop speed multiplier (0 pauses).
func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if body.Speed < 0 || body.Speed > 100 {
		http.Error(w, "speed out of range", http.StatusBadRequest)
		return
	}
	s.Loop.Speed = body.Speed
	slog.Info("loop speed changed", "speed", body.Speed)
	writeJSON(w, map[string]any{"speed": body.Speed})
}
