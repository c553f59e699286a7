package plan

// Snapshot is a structural copy of the planning system's full state: every
// plan, any status, step state and counters included.
type Snapshot struct {
	Plans []Plan `json:"plans"`
}

// Snapshot captures the current state.
func (s *System) Snapshot() Snapshot {
	snap := Snapshot{Plans: make([]Plan, len(s.plans))}
	for i, p := range s.plans {
		cp := *p
		cp.Steps = append([]Step(nil), p.Steps...)
		cp.SourceNeeds = append([]string(nil), p.SourceNeeds...)
		snap.Plans[i] = cp
	}
	return snap
}

// Restore replaces the system's state with a snapshot.
func (s *System) Restore(snap Snapshot) {
	s.plans = make([]*Plan, len(snap.Plans))
	for i := range snap.Plans {
		p := snap.Plans[i]
		p.Steps = append([]Step(nil), p.Steps...)
		p.SourceNeeds = append([]string(nil), p.SourceNeeds...)
		s.plans[i] = &p
	}
}
