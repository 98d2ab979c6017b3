package agent

import "github.com/joseph-ayodele/statement-agent/constants"

// Next is the loop's transition function. attempt counts completed
// verifications; max is the iteration budget.
func Next(state constants.LoopState, passed bool, attempt, max int) constants.LoopState {
	switch state {
	case constants.StatePlanning:
		return constants.StateGenerating
	case constants.StateGenerating:
		return constants.StateVerifying
	case constants.StateVerifying:
		switch {
		case passed:
			return constants.StateSucceeded
		case attempt >= max:
			return constants.StateFailed
		}
		return constants.StateGenerating
	}
	return state
}
