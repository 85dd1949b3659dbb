package policy

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r1"
	G "gorgonia.org/gorgonia"

	"deeprl/environment"
	"deeprl/environment/classiccontrol/pendulum"
	"deeprl/network"
	"deeprl/utils/op"
)

const tolerance float64 = 1e-8

// newTestEnv returns a continuous-action pendulum environment. Its
// action space is one-dimensional with bounds ±2.
func newTestEnv(t *testing.T, seed uint64) environment.Environment {
	t.Helper()

	bounds := []r1.Interval{
		{Min: -0.1, Max: 0.1},
		{Min: -0.1, Max: 0.1},
	}
	starter := environment.NewUniformStarter(bounds, seed)
	task := pendulum.NewSwingUp(starter, 500)

	env, _ := pendulum.NewContinuous(task, 0.99)
	return env
}

// Zero-initialized weights give a known distribution: mean 0 and
// standard deviation exp(0) + stdOffset, so the log density of the
// squashed action can be computed in closed form.
func TestSquashedGaussianLogDensityClosedForm(t *testing.T) {
	env := newTestEnv(t, 1)
	pol, err := NewSquashedGaussian(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()}, G.Zeroes(), 1)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	std := math.Exp(0) + stdOffset
	scale := pol.Scale()

	for _, eps := range []float64{0.0, 0.5, -1.3, 2.0} {
		if err := pol.net.SetInput([]float64{0.1, -0.2}); err != nil {
			t.Fatalf("could not set input: %v", err)
		}
		if err := pol.SetNoise([]float64{eps}); err != nil {
			t.Fatalf("could not set noise: %v", err)
		}
		if err := pol.vm.RunAll(); err != nil {
			t.Fatalf("could not run policy: %v", err)
		}

		x := std * eps
		gauss := -0.5*math.Pow(x/std, 2) - math.Log(std) -
			0.5*math.Log(2*math.Pi)
		correction := math.Log(scale*(1-math.Pow(math.Tanh(x), 2)) +
			op.LogStabilizer())
		want := gauss - correction

		have := pol.LogProbVal().Data().([]float64)[0]
		if math.Abs(have-want) > tolerance {
			t.Errorf("wrong log density for noise %v "+
				"\n\twant(%v)\n\thave(%v)", eps, want, have)
		}

		wantAction := scale * math.Tanh(x)
		haveAction := pol.ActionsVal().Data().([]float64)[0]
		if math.Abs(haveAction-wantAction) > tolerance {
			t.Errorf("wrong action for noise %v \n\twant(%v)\n\thave(%v)",
				eps, wantAction, haveAction)
		}

		pol.vm.Reset()
	}
}

// The log density must stay finite as the squashed action approaches
// the action bounds
func TestSquashedGaussianFiniteNearBounds(t *testing.T) {
	env := newTestEnv(t, 2)
	pol, err := NewSquashedGaussian(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()}, G.Zeroes(), 2)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	for _, eps := range []float64{25.0, -25.0, 100.0} {
		if err := pol.net.SetInput([]float64{0.0, 0.0}); err != nil {
			t.Fatalf("could not set input: %v", err)
		}
		if err := pol.SetNoise([]float64{eps}); err != nil {
			t.Fatalf("could not set noise: %v", err)
		}
		if err := pol.vm.RunAll(); err != nil {
			t.Fatalf("could not run policy: %v", err)
		}

		logProb := pol.LogProbVal().Data().([]float64)[0]
		if math.IsNaN(logProb) || math.IsInf(logProb, 0) {
			t.Errorf("log density not finite at the action bound "+
				"(noise %v) \n\thave(%v)", eps, logProb)
		}
		pol.vm.Reset()
	}
}

// Sampled actions must always lie within the environment's bounds
func TestSquashedGaussianActionBounds(t *testing.T) {
	env := newTestEnv(t, 3)
	pol, err := NewSquashedGaussian(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 3)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	spec := env.ActionSpec()
	step := env.Reset()
	for i := 0; i < 100; i++ {
		action := pol.SelectAction(step)
		for j := 0; j < action.Len(); j++ {
			if action.AtVec(j) < spec.LowerBound.AtVec(j) ||
				action.AtVec(j) > spec.UpperBound.AtVec(j) {
				t.Fatalf("action out of bounds "+
					"\n\twant(in [%v, %v])\n\thave(%v)",
					spec.LowerBound.AtVec(j), spec.UpperBound.AtVec(j),
					action.AtVec(j))
			}
		}
	}
}

// Evaluation mode zeroes the noise, so repeated action selections from
// the same state must agree
func TestSquashedGaussianEvalDeterministic(t *testing.T) {
	env := newTestEnv(t, 4)
	pol, err := NewSquashedGaussian(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 4)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	pol.Eval()
	step := env.Reset()
	first := pol.SelectAction(step)
	second := pol.SelectAction(step)
	for i := 0; i < first.Len(); i++ {
		if first.AtVec(i) != second.AtVec(i) {
			t.Errorf("evaluation mode action selection not "+
				"deterministic \n\twant(%v)\n\thave(%v)",
				first.AtVec(i), second.AtVec(i))
		}
	}
}

// Cloning with a new batch size must copy the network weights exactly
func TestSquashedGaussianCloneCopiesWeights(t *testing.T) {
	env := newTestEnv(t, 5)
	pol, err := NewSquashedGaussian(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 5)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	clone, err := pol.CloneWithBatch(8, 6)
	if err != nil {
		t.Fatalf("could not clone policy: %v", err)
	}
	defer clone.Close()

	source := pol.Network().Learnables()
	copied := clone.Network().Learnables()
	if len(source) != len(copied) {
		t.Fatalf("clone has wrong number of learnables "+
			"\n\twant(%v)\n\thave(%v)", len(source), len(copied))
	}
	for i := range source {
		srcData := source[i].Value().Data().([]float64)
		cloneData := copied[i].Value().Data().([]float64)
		for j := range srcData {
			if srcData[j] != cloneData[j] {
				t.Fatalf("clone weights differ from source")
			}
		}
	}
}

// Deterministic policies in evaluation mode must return the same
// in-bounds action for the same state
func TestDeterministicMLPEvalDeterministic(t *testing.T) {
	env := newTestEnv(t, 6)
	pol, err := NewDeterministicMLP(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 0.1, 6)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	pol.Eval()
	step := env.Reset()
	first := pol.SelectAction(step)
	second := pol.SelectAction(step)
	for i := 0; i < first.Len(); i++ {
		if first.AtVec(i) != second.AtVec(i) {
			t.Errorf("evaluation mode action selection not "+
				"deterministic \n\twant(%v)\n\thave(%v)",
				first.AtVec(i), second.AtVec(i))
		}
	}
}

// Exploration noise must never push actions outside the bounds
func TestDeterministicMLPNoisyActionBounds(t *testing.T) {
	env := newTestEnv(t, 7)
	pol, err := NewDeterministicMLP(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 5.0, 7)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	spec := env.ActionSpec()
	step := env.Reset()
	for i := 0; i < 100; i++ {
		action := pol.SelectAction(step)
		for j := 0; j < action.Len(); j++ {
			if action.AtVec(j) < spec.LowerBound.AtVec(j) ||
				action.AtVec(j) > spec.UpperBound.AtVec(j) {
				t.Fatalf("noisy action out of bounds "+
					"\n\twant(in [%v, %v])\n\thave(%v)",
					spec.LowerBound.AtVec(j), spec.UpperBound.AtVec(j),
					action.AtVec(j))
			}
		}
	}
}

func TestDeterministicMLPRandomActionBounds(t *testing.T) {
	env := newTestEnv(t, 8)
	pol, err := NewDeterministicMLP(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 0.1, 8)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	// Random actions sum two N(0, 0.1) draws: they stay within the
	// action bounds and concentrate near zero (0.9 is over six
	// standard deviations out)
	spec := env.ActionSpec()
	for i := 0; i < 100; i++ {
		action := pol.RandomAction()
		for j := 0; j < action.Len(); j++ {
			if action.AtVec(j) < spec.LowerBound.AtVec(j) ||
				action.AtVec(j) > spec.UpperBound.AtVec(j) {
				t.Fatalf("random action out of bounds "+
					"\n\twant(in [%v, %v])\n\thave(%v)",
					spec.LowerBound.AtVec(j), spec.UpperBound.AtVec(j),
					action.AtVec(j))
			}
			if math.Abs(action.AtVec(j)) > 0.9 {
				t.Fatalf("random action not drawn from exploration "+
					"noise \n\twant(|action| < 0.9)\n\thave(%v)",
					action.AtVec(j))
			}
		}
	}
}

// A Gaussian policy with zero-initialized weights has mean 0 and
// standard deviation exp(0) + stdOffset, so the log density of a given
// action can be computed in closed form
func TestGaussianMLPLogPdfClosedForm(t *testing.T) {
	env := newTestEnv(t, 9)
	pol, err := NewGaussianMLP(env, 1, []int{4}, []bool{true},
		[]*network.Activation{network.ReLU()}, G.Zeroes(), 9)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	vm := G.NewTapeMachine(pol.Network().Graph())
	defer vm.Close()

	std := math.Exp(0) + stdOffset
	for _, action := range []float64{0.0, 0.7, -1.9} {
		if _, err := pol.LogPdfOf([]float64{0.1, -0.2},
			[]float64{action}); err != nil {
			t.Fatalf("could not set log density inputs: %v", err)
		}
		if err := vm.RunAll(); err != nil {
			t.Fatalf("could not run policy: %v", err)
		}

		want := -0.5*math.Pow(action/std, 2) - math.Log(std) -
			0.5*math.Log(2*math.Pi)
		have := pol.LogPdfVal().Data().([]float64)[0]
		if math.Abs(have-want) > tolerance {
			t.Errorf("wrong log density for action %v "+
				"\n\twant(%v)\n\thave(%v)", action, want, have)
		}
		vm.Reset()
	}
}
