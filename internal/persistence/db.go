// Package persistence provides SQLite-based storage for engine state: goal
// and plan snapshots, need levels, and recent experiences.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talekin/mindsim/internal/goal"
	"github.com/talekin/mindsim/internal/needs"
	"github.com/talekin/mindsim/internal/plan"
)

// DB wraps a SQLite connection for engine state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. Pass
// ":memory:" for an ephemeral store.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		horizon TEXT NOT NULL,
		progress REAL NOT NULL,
		confidence REAL NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_progressed TEXT NOT NULL,
		times_advanced INTEGER NOT NULL,
		times_regressed INTEGER NOT NULL,
		source_needs_json TEXT NOT NULL,
		source_lessons_json TEXT NOT NULL,
		recommended_actions_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		goal_description TEXT NOT NULL,
		horizon TEXT NOT NULL,
		current_step_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		times_replanned INTEGER NOT NULL,
		consecutive_overrides INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		source_needs_json TEXT NOT NULL,
		steps_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS experiences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action_taken TEXT NOT NULL,
		need_deltas_json TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS engine_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
	CREATE INDEX IF NOT EXISTS idx_plans_goal ON plans(goal_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveGoals writes a goal snapshot (full replace).
func (db *DB) SaveGoals(snap goal.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM goals"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO goals
		(id, description, horizon, progress, confidence, status,
		 created_at, last_progressed, times_advanced, times_regressed,
		 source_needs_json, source_lessons_json, recommended_actions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range snap.Goals {
		needsJSON, _ := json.Marshal(g.SourceNeeds)
		lessonsJSON, _ := json.Marshal(g.SourceLessons)
		actionsJSON, _ := json.Marshal(g.RecommendedActions)

		_, err := stmt.Exec(
			g.ID, g.Description, string(g.Horizon), g.Progress, g.Confidence, string(g.Status),
			g.CreatedAt.Format(time.RFC3339Nano), g.LastProgressed.Format(time.RFC3339Nano),
			g.TimesAdvanced, g.TimesRegressed,
			string(needsJSON), string(lessonsJSON), string(actionsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert goal %s: %w", g.ID, err)
		}
	}

	if err := saveMetaTx(tx, "since_generation", fmt.Sprintf("%d", snap.SinceGeneration)); err != nil {
		return err
	}
	if err := saveMetaTx(tx, "cycle", fmt.Sprintf("%d", snap.Cycle)); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadGoals reads the stored goal snapshot.
func (db *DB) LoadGoals() (goal.Snapshot, error) {
	var snap goal.Snapshot

	rows, err := db.conn.Queryx(`SELECT id, description, horizon, progress, confidence,
		status, created_at, last_progressed, times_advanced, times_regressed,
		source_needs_json, source_lessons_json, recommended_actions_json FROM goals`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()

	for rows.Next() {
		var g goal.Goal
		var horizon, status, createdAt, lastProgressed string
		var needsJSON, lessonsJSON, actionsJSON string
		if err := rows.Scan(&g.ID, &g.Description, &horizon, &g.Progress, &g.Confidence,
			&status, &createdAt, &lastProgressed, &g.TimesAdvanced, &g.TimesRegressed,
			&needsJSON, &lessonsJSON, &actionsJSON); err != nil {
			return snap, err
		}
		g.Horizon = goal.Horizon(horizon)
		g.Status = goal.Status(status)
		g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		g.LastProgressed, _ = time.Parse(time.RFC3339Nano, lastProgressed)
		json.Unmarshal([]byte(needsJSON), &g.SourceNeeds)
		json.Unmarshal([]byte(lessonsJSON), &g.SourceLessons)
		json.Unmarshal([]byte(actionsJSON), &g.RecommendedActions)
		snap.Goals = append(snap.Goals, g)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	if v, err := db.GetMeta("since_generation"); err == nil {
		fmt.Sscanf(v, "%d", &snap.SinceGeneration)
	}
	if v, err := db.GetMeta("cycle"); err == nil {
		fmt.Sscanf(v, "%d", &snap.Cycle)
	}
	return snap, nil
}

// SavePlans writes a plan snapshot (full replace).
func (db *DB) SavePlans(snap plan.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM plans"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO plans
		(id, goal_id, goal_description, horizon, current_step_index, status,
		 times_replanned, consecutive_overrides, created_at, source_needs_json, steps_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range snap.Plans {
		needsJSON, _ := json.Marshal(p.SourceNeeds)
		stepsJSON, _ := json.Marshal(p.Steps)

		_, err := stmt.Exec(
			p.ID, p.GoalID, p.GoalDescription, string(p.Horizon),
			p.CurrentStepIndex, string(p.Status), p.TimesReplanned,
			p.ConsecutiveOverrides, p.CreatedAt.Format(time.RFC3339Nano),
			string(needsJSON), string(stepsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert plan %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// LoadPlans reads the stored plan snapshot.
func (db *DB) LoadPlans() (plan.Snapshot, error) {
	var snap plan.Snapshot

	rows, err := db.conn.Queryx(`SELECT id, goal_id, goal_description, horizon,
		current_step_index, status, times_replanned, consecutive_overrides,
		created_at, source_needs_json, steps_json FROM plans`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()

	for rows.Next() {
		var p plan.Plan
		var horizon, status, createdAt, needsJSON, stepsJSON string
		if err := rows.Scan(&p.ID, &p.GoalID, &p.GoalDescription, &horizon,
			&p.CurrentStepIndex, &status, &p.TimesReplanned, &p.ConsecutiveOverrides,
			&createdAt, &needsJSON, &stepsJSON); err != nil {
			return snap, err
		}
		p.Horizon = goal.Horizon(horizon)
		p.Status = plan.Status(status)
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		json.Unmarshal([]byte(needsJSON), &p.SourceNeeds)
		json.Unmarshal([]byte(stepsJSON), &p.Steps)
		snap.Plans = append(snap.Plans, p)
	}
	return snap, rows.Err()
}

// SaveExperience appends one experience record.
func (db *DB) SaveExperience(exp needs.Experience) error {
	deltasJSON, _ := json.Marshal(exp.NeedDeltas)
	_, err := db.conn.Exec(
		"INSERT INTO experiences (action_taken, need_deltas_json, timestamp) VALUES (?, ?, ?)",
		exp.ActionTaken, string(deltasJSON), exp.Timestamp.Format(time.RFC3339Nano),
	)
	return err
}

// RecentExperiences returns the most recent N experiences in chronological
// order.
func (db *DB) RecentExperiences(limit int) ([]needs.Experience, error) {
	rows, err := db.conn.Queryx(
		"SELECT action_taken, need_deltas_json, timestamp FROM experiences ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []needs.Experience
	for rows.Next() {
		var exp needs.Experience
		var deltasJSON, ts string
		if err := rows.Scan(&exp.ActionTaken, &deltasJSON, &ts); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(deltasJSON), &exp.NeedDeltas)
		exp.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, exp)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// SaveNeedLevels stores the needs state as metadata.
func (db *DB) SaveNeedLevels(levels map[string]float64) error {
	levelsJSON, _ := json.Marshal(levels)
	return db.SaveMeta("need_levels", string(levelsJSON))
}

// LoadNeedLevels reads the stored needs state, or nil if none saved.
func (db *DB) LoadNeedLevels() (map[string]float64, error) {
	v, err := db.GetMeta("need_levels")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var levels map[string]float64
	if err := json.Unmarshal([]byte(v), &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// SaveMeta stores a key-value pair in engine metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO engine_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

func saveMetaTx(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT OR REPLACE INTO engine_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM engine_meta WHERE key = ?", key)
	return value, err
}

// HasState reports whether a previous engine state was saved.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM goals"); err != nil {
		return false
	}
	if count > 0 {
		return true
	}
	_, err := db.GetMeta("cycle")
	return err == nil
}

// SaveState performs a full save of goal, plan, and needs state.
func (db *DB) SaveState(goals goal.Snapshot, plans plan.Snapshot, levels map[string]float64) error {
	slog.Debug("saving engine state", "goals", len(goals.Goals), "plans", len(plans.Plans))

	if err := db.SaveGoals(goals); err != nil {
		return fmt.Errorf("save goals: %w", err)
	}
	if err := db.SavePlans(plans); err != nil {
		return fmt.Errorf("save plans: %w", err)
	}
	if err := db.SaveNeedLevels(levels); err != nil {
		return fmt.Errorf("save need levels: %w", err)
	}
	return nil
}
