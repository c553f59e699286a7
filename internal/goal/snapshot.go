package goal

// Snapshot is a structural copy of the goal system's full state, sufficient
// to reconstruct it exactly: every goal regardless of status plus the
// generation and cycle counters.
type Snapshot struct {
	Goals           []Goal `json:"goals"`
	SinceGeneration int    `json:"since_generation"`
	Cycle           uint64 `json:"cycle"`
}

// Snapshot captures the current state.
func (s *System) Snapshot() Snapshot {
	snap := Snapshot{
		Goals:           make([]Goal, len(s.goals)),
		SinceGeneration: s.sinceGeneration,
		Cycle:           s.cycle,
	}
	for i, g := range s.goals {
		snap.Goals[i] = *g
	}
	return snap
}

// Restore replaces the system's state with a snapshot. The milestone cache
// is discarded: a restored system re-checks on its next cycle.
func (s *System) Restore(snap Snapshot) {
	s.goals = make([]*Goal, len(snap.Goals))
	for i := range snap.Goals {
		g := snap.Goals[i]
		s.goals[i] = &g
	}
	s.sinceGeneration = snap.SinceGeneration
	s.cycle = snap.Cycle
	s.milestoneChecked = false
	s.milestoneCache = nil
}
