package sac

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"deeprl/environment"
	"deeprl/environment/classiccontrol/pendulum"
	"deeprl/expreplay"
	"deeprl/initwfn"
	"deeprl/network"
	"deeprl/solver"
	ts "deeprl/timestep"
)

// newTestEnv returns a continuous-action pendulum environment for
// testing agents
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

// newTestConfig returns a Config for a small SAC agent
func newTestConfig(t *testing.T, batchSize int, learnAlpha bool,
	targetEntropy float64) Config {
	t.Helper()

	newAdam := func() *solver.Solver {
		adam, err := solver.NewDefaultAdam(0.001, batchSize)
		if err != nil {
			t.Fatalf("could not create solver: %v", err)
		}
		return adam
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}

	return Config{
		PolicyLayers:      []int{8},
		PolicyBiases:      []bool{true},
		PolicyActivations: []*network.Activation{network.ReLU()},

		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},

		PolicySolver: newAdam(),
		CriticSolver: newAdam(),
		AlphaSolver:  newAdam(),

		InitWFn: init,
		ExpReplay: expreplay.Config{
			BatchSize:         batchSize,
			MaxReplayCapacity: 1000,
			MinReplayCapacity: batchSize,
		},

		InitialAlpha:  0.5,
		LearnAlpha:    learnAlpha,
		TargetEntropy: targetEntropy,

		Tau:                  0.05,
		TargetUpdateInterval: 1,
	}
}

// snapshot copies the current weight values of all learnables of an
// agent's behaviour policy
func snapshot(t *testing.T, agent *SAC) [][]float64 {
	t.Helper()

	learnables := agent.behaviour.Network().Learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		weights[i] = append([]float64{}, data...)
	}
	return weights
}

// interact runs the agent-environment loop for steps timesteps,
// storing each transition but taking no gradient steps
func interact(t *testing.T, agent *SAC, env environment.Environment,
	steps int) {
	t.Helper()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	for i := 0; i < steps; i++ {
		action := agent.SelectAction(step)
		next, last := env.Step(action)
		if err := agent.Observe(action, next); err != nil {
			t.Fatalf("could not observe timestep: %v", err)
		}
		step = next

		if last {
			step = env.Reset()
			if err := agent.ObserveFirst(step); err != nil {
				t.Fatalf("could not observe first timestep: %v", err)
			}
		}
	}
}

// Updates should be skipped entirely until the replay buffer holds one
// full batch
func TestStepNoOpBelowBatchSize(t *testing.T) {
	const batchSize = 8

	env := newTestEnv(t, 1)
	agent, err := New(env, newTestConfig(t, batchSize, false, 0), 1)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, batchSize-1)
	before := snapshot(t, agent)

	if err := agent.Step(); err != nil {
		t.Fatalf("step returned error below batch size: %v", err)
	}

	after := snapshot(t, agent)
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				t.Fatalf("step changed policy weights below batch size")
			}
		}
	}
}

func TestStepUpdatesPolicy(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 2)
	agent, err := New(env, newTestConfig(t, batchSize, false, 0), 2)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, 2*batchSize)
	before := snapshot(t, agent)

	if err := agent.Step(); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}

	after := snapshot(t, agent)
	changed := false
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				changed = true
			}
			if math.IsNaN(after[i][j]) || math.IsInf(after[i][j], 0) {
				t.Fatalf("update produced non-finite weight %v",
					after[i][j])
			}
		}
	}
	if !changed {
		t.Error("update did not change the policy weights")
	}
}

// A zero target entropy selects the default of the negative number of
// action dimensions
func TestTargetEntropyDefault(t *testing.T) {
	env := newTestEnv(t, 3)
	agent, err := New(env, newTestConfig(t, 4, true, 0), 3)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	want := -float64(env.ActionSpec().Shape.Len())
	if agent.TargetEntropy() != want {
		t.Errorf("wrong default target entropy \n\twant(%v)\n\thave(%v)",
			want, agent.TargetEntropy())
	}
}

func TestTargetEntropyExplicit(t *testing.T) {
	env := newTestEnv(t, 4)
	agent, err := New(env, newTestConfig(t, 4, true, -2.5), 4)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	if agent.TargetEntropy() != -2.5 {
		t.Errorf("wrong target entropy \n\twant(%v)\n\thave(%v)",
			-2.5, agent.TargetEntropy())
	}
}

// A fixed temperature must stay at its initial value across updates
func TestFixedAlphaUnchanged(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 5)
	config := newTestConfig(t, batchSize, false, 0)
	agent, err := New(env, config, 5)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, 2*batchSize)
	for i := 0; i < 3; i++ {
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
	}

	if agent.Alpha() != config.InitialAlpha {
		t.Errorf("fixed temperature changed \n\twant(%v)\n\thave(%v)",
			config.InitialAlpha, agent.Alpha())
	}
}

func TestLearnedAlphaChanges(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 6)
	config := newTestConfig(t, batchSize, true, 0)
	agent, err := New(env, config, 6)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, 2*batchSize)
	for i := 0; i < 3; i++ {
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
	}

	alpha := agent.Alpha()
	if alpha == config.InitialAlpha {
		t.Error("learned temperature did not change")
	}
	if alpha <= 0 || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		t.Errorf("learned temperature must stay positive and finite "+
			"\n\thave(%v)", alpha)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	env := newTestEnv(t, 7)

	config := newTestConfig(t, 4, true, 0)
	config.AlphaSolver = nil
	if _, err := New(env, config, 7); err == nil {
		t.Error("expected error for learned temperature without solver")
	}

	config = newTestConfig(t, 4, false, 0)
	config.Tau = 1.5
	if _, err := New(env, config, 7); err == nil {
		t.Error("expected error for tau outside [0, 1]")
	}

	config = newTestConfig(t, 4, false, 0)
	config.TargetUpdateInterval = 0
	if _, err := New(env, config, 7); err == nil {
		t.Error("expected error for non-positive target update interval")
	}
}

// constantRewardEnv is a one-dimensional continuing environment that
// pays a fixed reward on every step, so that critic losses can be
// computed in closed form
type constantRewardEnv struct {
	reward   float64
	discount float64
	lastStep ts.TimeStep
}

func newConstantRewardEnv(reward, discount float64) *constantRewardEnv {
	return &constantRewardEnv{reward: reward, discount: discount}
}

func (c *constantRewardEnv) Start() *mat.VecDense {
	return mat.NewVecDense(1, []float64{0.0})
}

func (c *constantRewardEnv) End(*ts.TimeStep) bool { return false }

func (c *constantRewardEnv) GetReward(_, _, _ mat.Vector) float64 {
	return c.reward
}

func (c *constantRewardEnv) AtGoal(mat.Matrix) bool { return false }

func (c *constantRewardEnv) Min() float64 { return c.reward }

func (c *constantRewardEnv) Max() float64 { return c.reward }

func (c *constantRewardEnv) RewardSpec() environment.Spec {
	bound := mat.NewVecDense(1, []float64{c.reward})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Reward, bound, bound, environment.Continuous)
}

func (c *constantRewardEnv) Reset() ts.TimeStep {
	c.lastStep = ts.New(ts.First, 0.0, c.discount, c.Start(), 0)
	return c.lastStep
}

func (c *constantRewardEnv) Step(action *mat.VecDense) (ts.TimeStep, bool) {
	c.lastStep = ts.New(ts.Mid, c.reward, c.discount, c.Start(),
		c.lastStep.Number+1)
	return c.lastStep, false
}

func (c *constantRewardEnv) DiscountSpec() environment.Spec {
	bound := mat.NewVecDense(1, []float64{c.discount})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Discount, bound, bound, environment.Continuous)
}

func (c *constantRewardEnv) ObservationSpec() environment.Spec {
	lower := mat.NewVecDense(1, []float64{-1.0})
	upper := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Observation, lower, upper, environment.Continuous)
}

func (c *constantRewardEnv) ActionSpec() environment.Spec {
	lower := mat.NewVecDense(1, []float64{-1.0})
	upper := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Action, lower, upper, environment.Continuous)
}

func (c *constantRewardEnv) LastTimeStep() ts.TimeStep { return c.lastStep }

// With zero-initialized critics every prediction is 0, and with a
// negligible temperature every bootstrap target equals the constant
// reward r, so the joint critic loss on the first gradient step is
// mean((0-r)^2) summed over both critics: 2r^2.
func TestCriticLossZeroInitConstantReward(t *testing.T) {
	const reward = 1.5
	const batchSize = 8

	env := newConstantRewardEnv(reward, 0.99)

	config := newTestConfig(t, batchSize, false, 0)
	zeroes, err := initwfn.NewZeroes()
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}
	config.InitWFn = zeroes
	config.InitialAlpha = 1e-9

	agent, err := New(env, config, 3)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	if !math.IsNaN(agent.CriticLoss()) {
		t.Error("critic loss must be NaN before the first gradient step")
	}

	interact(t, agent, env, batchSize)
	if err := agent.Step(); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}

	want := 2 * reward * reward
	if math.Abs(agent.CriticLoss()-want) > 1e-6 {
		t.Errorf("wrong critic loss for zero critics on constant "+
			"rewards \n\twant(%v)\n\thave(%v)", want, agent.CriticLoss())
	}
}
