package search

import "github.com/propscout/propscout-api/pkg/model"

// statusRank orders the non-failure run states. Transitions must move strictly
// forward; no state is ever revisited.
var statusRank = map[model.RunStatus]int{
	model.RunPending:   0,
	model.RunFiltering: 1,
	model.RunAnalyzing: 2,
	model.RunCompleted: 3,
}

// CanTransition reports whether a run may move from one status to another.
// Any non-terminal state may fail directly; completed and failed are terminal.
func CanTransition(from, to model.RunStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == model.RunFailed {
		return true
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	return okFrom && okTo && toRank > fromRank
}
