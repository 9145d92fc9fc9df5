package registry

// validTransitions encodes the hub phase state machine (spec §4.3/§4.4,
// §8 "Phase monotonicity"): creating → starting → seeding → ready, with
// re-seed and post-restart-recovery edges back from ready, and error
// absorbing from any non-terminal state. Deletion is not a phase
// transition; it removes the record entirely (see Registry.Remove).
var validTransitions = map[Phase]map[Phase]bool{
	PhaseCreating: {PhaseStarting: true, PhaseError: true},
	PhaseStarting: {PhaseSeeding: true, PhaseError: true},
	PhaseSeeding:  {PhaseReady: true, PhaseError: true},
	PhaseReady: {
		PhaseSeeding:  true, // re-seed
		PhaseStarting: true, // recovery after an engine restart
		PhaseError:    true,
	},
	PhaseError: {},
}

// canTransition reports whether from→to is a legal hub phase edge.
func canTransition(from, to Phase) bool {
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
