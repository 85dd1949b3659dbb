package environment

import "deeprl/timestep"

// StepLimit implements the Ender interface to end episodes at a
// specific timestep limit. Episodes ended by a StepLimit are cutoffs,
// not terminations: bootstrapping past them remains valid.
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit Ender
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End returns whether the current episode should end, marking the
// timestep as a timeout cutoff if so
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if t.Number >= s.episodeSteps {
		t.End(timestep.Timeout)
		return true
	}
	return false
}
