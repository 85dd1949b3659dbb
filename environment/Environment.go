// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"deeprl/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments. Starting states are returned as
// concrete dense vectors since timesteps store their observations
// densely.
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode ends. Enders modify a timestep in
// place, marking it as the last of its episode with the appropriate
// end type.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking an action in a state
	// leading to a next state
	GetReward(state mat.Vector, action mat.Vector, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state
	AtGoal(state mat.Matrix) bool

	// Min and Max return the minimum and maximum attainable rewards
	Min() float64
	Max() float64

	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task

	// Reset resets the environment between episodes and returns the
	// starting timestep
	Reset() timestep.TimeStep

	// Step takes one environmental step given an action, returning the
	// next timestep and whether it is the last of the episode
	Step(action *mat.VecDense) (timestep.TimeStep, bool)

	// LastTimeStep returns the most recent timestep of the environment
	LastTimeStep() timestep.TimeStep

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
