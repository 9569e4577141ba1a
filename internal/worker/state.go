package worker

import "shipyard/pkg/api"

// State is a job's position in the pipeline. Values match the tracking service's wire format.
type State string

const (
	StateQueued     State = api.StatusQueued
	StateAnalyzing  State = api.StatusAnalyzing
	StateGenerating State = api.StatusGenerating
	StateBuilding   State = api.StatusBuilding
	StateTraining   State = api.StatusTraining
	StateDeploying  State = api.StatusDeploying
	StateCompleted  State = api.StatusCompleted
	StateFailed     State = api.StatusFailed
)

// Terminal reports whether s ends the job.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var transitions = map[State][]State{
	StateQueued:     {StateAnalyzing},
	StateAnalyzing:  {StateGenerating},
	StateGenerating: {StateBuilding, StateTraining, StateDeploying, StateCompleted},
	StateBuilding:   {StateTraining, StateDeploying, StateCompleted},
	StateTraining:   {StateDeploying, StateCompleted},
	StateDeploying:  {StateCompleted},
}

// CanTransition reports whether a job in from may move to to.
// Every non-terminal state may fail; terminal states accept nothing.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
