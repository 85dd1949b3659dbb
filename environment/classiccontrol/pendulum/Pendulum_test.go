package pendulum

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"deeprl/environment"
	"deeprl/timestep"
)

func newSwingUpEnv(t *testing.T, seed uint64) (*Continuous,
	timestep.TimeStep) {
	t.Helper()

	bounds := []r1.Interval{
		{Min: -0.25, Max: 0.25},
		{Min: -0.25, Max: 0.25},
	}
	starter := environment.NewUniformStarter(bounds, seed)
	task := NewSwingUp(starter, 500)

	env, firstStep := NewContinuous(task, 0.99)
	return env, firstStep
}

// Starting states drawn by the task's starter flow into timesteps as
// dense vectors, so observations can be fed to networks without
// copying
func TestStartingStatesAreDenseObservations(t *testing.T) {
	_, firstStep := newSwingUpEnv(t, 11)

	if !firstStep.First() {
		t.Error("environment construction should yield the first timestep")
	}

	obs := firstStep.Observation
	if obs == nil {
		t.Fatal("first timestep has no observation")
	}
	if obs.Len() != ObservationDims {
		t.Errorf("wrong observation dimensions \n\twant(%v)\n\thave(%v)",
			ObservationDims, obs.Len())
	}
	if data := obs.RawVector().Data; len(data) != ObservationDims {
		t.Errorf("wrong backing data length \n\twant(%v)\n\thave(%v)",
			ObservationDims, len(data))
	}

	for i := 0; i < obs.Len(); i++ {
		if obs.AtVec(i) < -0.25 || obs.AtVec(i) > 0.25 {
			t.Errorf("starting state feature %v outside starter bounds: %v",
				i, obs.AtVec(i))
		}
	}
}

func TestResetDrawsNewStartingState(t *testing.T) {
	env, firstStep := newSwingUpEnv(t, 13)

	step := env.Reset()
	if !step.First() {
		t.Error("reset should yield the first timestep of an episode")
	}
	if step.Observation.Len() != ObservationDims {
		t.Errorf("wrong observation dimensions \n\twant(%v)\n\thave(%v)",
			ObservationDims, step.Observation.Len())
	}
	if mat.Equal(step.Observation, firstStep.Observation) {
		t.Error("reset should draw a new starting state")
	}
}

func TestStepAdvancesTimestepNumbers(t *testing.T) {
	env, _ := newSwingUpEnv(t, 17)

	step := env.Reset()
	for i := 1; i <= 10; i++ {
		next, _ := env.Step(mat.NewVecDense(1, []float64{1.0}))
		if next.Number != step.Number+1 {
			t.Errorf("wrong timestep number \n\twant(%v)\n\thave(%v)",
				step.Number+1, next.Number)
		}
		if next.Observation.Len() != ObservationDims {
			t.Fatalf("wrong observation dimensions \n\twant(%v)"+
				"\n\thave(%v)", ObservationDims, next.Observation.Len())
		}
		step = next
	}
}
