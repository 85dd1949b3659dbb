package pendulum

import (
	"gonum.org/v1/gonum/mat"

	"deeprl/environment"
	"deeprl/timestep"
	"deeprl/utils/floatutils"
)

// Continuous implements the pendulum environment with continuous,
// 1-dimensional actions. Actions determine the torque to apply at the
// pendulum's fixed base and are clipped to stay within
// [MinContinuousAction, MaxContinuousAction].
//
// Continuous implements the environment.Environment interface
type Continuous struct {
	*base
}

// NewContinuous creates and returns a new Continuous pendulum
// environment
func NewContinuous(t environment.Task, discount float64) (*Continuous,
	timestep.TimeStep) {
	baseEnv, firstStep := newBase(t, discount)

	return &Continuous{baseEnv}, firstStep
}

// Step takes one environmental step given action a and returns the
// next timestep and a bool indicating whether or not the episode has
// ended
func (p *Continuous) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	if action.Len() > ActionDims {
		panic("step: actions should be 1-dimensional")
	}

	torque := floatutils.Clip(action.AtVec(0), MinContinuousAction,
		MaxContinuousAction)

	nextState := p.nextState(p.lastStep, torque)

	return p.update(action, nextState)
}

// ActionSpec returns the action specification of the environment
func (p *Continuous) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)

	lowerBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Min})
	upperBound := mat.NewVecDense(ActionDims, []float64{p.torqueBounds.Max})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}
