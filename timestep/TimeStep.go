// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes how an episode ended: at a terminal state, at a
// step cutoff, or not at all (the episode is still in progress).
type EndType int

const (
	// TerminalStateReached indicates that an episode ended because the
	// agent reached an environmental terminal state. Value estimates
	// must not bootstrap past such states.
	TerminalStateReached EndType = iota

	// Timeout indicates that an episode was cut off by a step limit.
	// The underlying state is not terminal, so value estimates may
	// still bootstrap past it.
	Timeout

	// NotEnded indicates that the episode is still in progress.
	NotEnded
)

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	stepType    StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	EndType
}

// New returns a new TimeStep. Steps constructed with New have their
// EndType set consistently with their StepType: Last steps end at a
// terminal state unless marked otherwise with SetEnd.
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	end := NotEnded
	if t == Last {
		end = TerminalStateReached
	}
	return TimeStep{t, r, d, o, n, end}
}

// SetEnd sets the way in which the timestep ended its episode
func (t *TimeStep) SetEnd(e EndType) {
	t.EndType = e
}

// End marks the timestep as the last of its episode with the given
// end type
func (t *TimeStep) End(e EndType) {
	t.stepType = Last
	t.EndType = e
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// TerminalEnd returns whether the TimeStep ended its episode at a
// terminal state, as opposed to being cut off by a timeout
func (t *TimeStep) TerminalEnd() bool {
	return t.Last() && t.EndType == TerminalStateReached
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.Reward, t.Discount, t.Number)
}

// Transition packages together a transition between two adjacent
// timesteps. Once stored in a replay buffer, a Transition is immutable;
// a buffer slot owns its copy of the data and overwrites it in place
// when the buffer wraps.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	NextState mat.Vector

	// Done is true only for transitions into terminal states. Timeout
	// cutoffs leave Done false so that bootstrapping remains valid.
	Done bool
}

// NewTransition packages an adjacent (step, action, nextStep) triple
// into a Transition
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextStep.Observation,
		Done:      nextStep.TerminalEnd(),
	}
}
