package td3

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r1"

	"deeprl/environment"
	"deeprl/environment/classiccontrol/pendulum"
	"deeprl/expreplay"
	"deeprl/initwfn"
	"deeprl/network"
	"deeprl/solver"
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

// newTestConfig returns a Config for a small TD3 agent
func newTestConfig(t *testing.T, batchSize, warmupSteps int) Config {
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

		InitWFn: init,
		ExpReplay: expreplay.Config{
			BatchSize:         batchSize,
			MaxReplayCapacity: 1000,
			MinReplayCapacity: batchSize,
		},

		ExplorationStdDev:     0.1,
		TargetSmoothingStdDev: 0.2,
		TargetSmoothingClip:   0.5,

		WarmupSteps: warmupSteps,
		PolicyDelay: 2,
		Tau:         0.05,
	}
}

// snapshot copies the current weight values of all learnables of a
// network
func snapshot(t *testing.T, net network.NeuralNet) [][]float64 {
	t.Helper()

	learnables := net.Learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		weights[i] = append([]float64{}, data...)
	}
	return weights
}

func changed(before, after [][]float64) bool {
	for i := range before {
		for j := range before[i] {
			if before[i][j] != after[i][j] {
				return true
			}
		}
	}
	return false
}

// interact runs the agent-environment loop for steps timesteps,
// storing each transition but taking no gradient steps
func interact(t *testing.T, agent *TD3, env environment.Environment,
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

// Updates should be skipped entirely until the replay buffer holds
// several batches of transitions
func TestStepNoOpBelowMinCapacity(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 1)
	agent, err := New(env, newTestConfig(t, batchSize, 0), 1)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	// One batch of transitions is not enough: the gate requires
	// minBatchesBeforeUpdate full batches
	interact(t, agent, env, batchSize)
	before := snapshot(t, agent.q1)

	if err := agent.Step(); err != nil {
		t.Fatalf("step returned error below minimum capacity: %v", err)
	}

	if changed(before, snapshot(t, agent.q1)) {
		t.Error("step changed critic weights below minimum capacity")
	}
}

// Every gradient step updates the critics, but the actor only changes
// on every policyDelay'th step
func TestDelayedActorUpdate(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 2)
	agent, err := New(env, newTestConfig(t, batchSize, 0), 2)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, minBatchesBeforeUpdate*batchSize)

	// First gradient step: critics update, actor does not (delay 2)
	criticBefore := snapshot(t, agent.q1)
	actorBefore := snapshot(t, agent.actor.Network())
	if err := agent.Step(); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}
	if !changed(criticBefore, snapshot(t, agent.q1)) {
		t.Error("first gradient step did not update the critics")
	}
	if changed(actorBefore, snapshot(t, agent.actor.Network())) {
		t.Error("actor updated before the policy delay elapsed")
	}

	// Second gradient step: the delay has elapsed, actor updates
	if err := agent.Step(); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}
	if !changed(actorBefore, snapshot(t, agent.actor.Network())) {
		t.Error("actor did not update after the policy delay elapsed")
	}
}

// Target networks should move toward the online networks only when the
// actor updates
func TestDelayedTargetUpdate(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 3)
	agent, err := New(env, newTestConfig(t, batchSize, 0), 3)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, minBatchesBeforeUpdate*batchSize)

	targetBefore := snapshot(t, agent.targetQ1)
	if err := agent.Step(); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}
	if changed(targetBefore, snapshot(t, agent.targetQ1)) {
		t.Error("target critic updated before the policy delay elapsed")
	}

	if err := agent.Step(); err != nil {
		t.Fatalf("could not step agent: %v", err)
	}
	if !changed(targetBefore, snapshot(t, agent.targetQ1)) {
		t.Error("target critic did not update after the policy delay " +
			"elapsed")
	}
}

// Warmup actions are drawn from the exploration noise distribution:
// with a small standard deviation they concentrate near zero rather
// than spreading over the action bounds, and they never leave the
// bounds.
func TestWarmupActionsFollowExplorationNoise(t *testing.T) {
	const warmup = 200

	env := newTestEnv(t, 4)
	agent, err := New(env, newTestConfig(t, 4, warmup), 4)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	spec := env.ActionSpec()
	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	// A warmup action sums two N(0, 0.1) draws, so 0.9 is over six
	// standard deviations out
	var maxAbs float64
	for i := 0; i < warmup; i++ {
		action := agent.SelectAction(step)
		for j := 0; j < action.Len(); j++ {
			a := action.AtVec(j)
			if a < spec.LowerBound.AtVec(j) || a > spec.UpperBound.AtVec(j) {
				t.Fatalf("warmup action out of bounds "+
					"\n\twant(in [%v, %v])\n\thave(%v)",
					spec.LowerBound.AtVec(j), spec.UpperBound.AtVec(j), a)
			}
			if math.Abs(a) > 0.9 {
				t.Fatalf("warmup action not drawn from exploration "+
					"noise \n\twant(|action| < 0.9)\n\thave(%v)", a)
			}
			maxAbs = math.Max(maxAbs, math.Abs(a))
		}

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

	if maxAbs == 0 {
		t.Error("warmup actions were all zero")
	}
}

func TestUpdatesStayFinite(t *testing.T) {
	const batchSize = 4

	env := newTestEnv(t, 5)
	agent, err := New(env, newTestConfig(t, batchSize, 0), 5)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	interact(t, agent, env, minBatchesBeforeUpdate*batchSize)
	for i := 0; i < 4; i++ {
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
	}

	for _, weights := range snapshot(t, agent.behaviour.Network()) {
		for _, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				t.Fatalf("update produced non-finite weight %v", w)
			}
		}
	}
}

func TestNewInvalidConfig(t *testing.T) {
	env := newTestEnv(t, 6)

	config := newTestConfig(t, 4, 0)
	config.PolicyDelay = 0
	if _, err := New(env, config, 6); err == nil {
		t.Error("expected error for non-positive policy delay")
	}

	config = newTestConfig(t, 4, 0)
	config.TargetSmoothingStdDev = -0.1
	if _, err := New(env, config, 6); err == nil {
		t.Error("expected error for negative smoothing noise")
	}

	config = newTestConfig(t, 4, 0)
	config.Tau = -0.5
	if _, err := New(env, config, 6); err == nil {
		t.Error("expected error for tau outside [0, 1]")
	}
}
