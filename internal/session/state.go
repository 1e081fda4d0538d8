package session

// State is the phase a run is in.
type State string

const (
	StateIdle               State = "idle"
	StateFetchingTeam       State = "fetching_team"
	StateEnumeratingMatches State = "enumerating_matches"
	StateFilteringByDate    State = "filtering_by_date"
	StateProcessingMatches  State = "processing_matches"
	StateCompleted          State = "completed"
	StateCancelled          State = "cancelled"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

var nextState = map[State]State{
	StateIdle:               StateFetchingTeam,
	StateFetchingTeam:       StateEnumeratingMatches,
	StateEnumeratingMatches: StateFilteringByDate,
	StateFilteringByDate:    StateProcessingMatches,
	StateProcessingMatches:  StateCompleted,
}

// canTransition allows the happy-path successor of from, or a jump to
// Cancelled/Failed from any non-terminal state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateCancelled || to == StateFailed {
		return true
	}
	return nextState[from] == to
}
