package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r1"

	"deeprl/agent"
	"deeprl/agent/nonlinear/continuous/sac"
	"deeprl/environment"
	"deeprl/environment/classiccontrol/pendulum"
	"deeprl/experiment/checkpointer"
	"deeprl/experiment/tracker"
	"deeprl/expreplay"
	"deeprl/initwfn"
	"deeprl/network"
	"deeprl/solver"
	ts "deeprl/timestep"
)

// newTestEnv returns a pendulum environment whose episodes are cut off
// after the argument number of steps
func newTestEnv(t *testing.T, cutoff int, seed uint64) environment.Environment {
	t.Helper()

	bounds := []r1.Interval{
		{Min: -0.1, Max: 0.1},
		{Min: -0.1, Max: 0.1},
	}
	starter := environment.NewUniformStarter(bounds, seed)
	task := pendulum.NewSwingUp(starter, cutoff)

	env, _ := pendulum.NewContinuous(task, 0.99)
	return env
}

// newTestAgent returns a small SAC agent on the argument environment
func newTestAgent(t *testing.T, env environment.Environment) agent.Agent {
	t.Helper()

	const batchSize = 4
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

	config := sac.Config{
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

		InitialAlpha: 0.5,

		Tau:                  0.05,
		TargetUpdateInterval: 1,
	}

	a, err := sac.New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	return a
}

// countingTracker counts how many timesteps it was asked to track
type countingTracker struct {
	tracked int
	saved   bool
}

func (c *countingTracker) Track(ts.TimeStep) { c.tracked++ }

func (c *countingTracker) Save() error {
	c.saved = true
	return nil
}

func TestRunEpisodeStopsAtEpisodeCutoff(t *testing.T) {
	env := newTestEnv(t, 25, 1)
	a := newTestAgent(t, env)
	counter := &countingTracker{}

	exp := NewOnline(env, a, 100, []tracker.Tracker{counter}, nil)

	if ended := exp.RunEpisode(); ended {
		t.Error("expected experiment to continue after one episode")
	}
	// First timestep plus one per environment step
	if counter.tracked != 26 {
		t.Errorf("expected 26 tracked timesteps, got %v", counter.tracked)
	}
}

func TestRunEpisodeStopsAtMaxSteps(t *testing.T) {
	env := newTestEnv(t, 25, 1)
	a := newTestAgent(t, env)
	counter := &countingTracker{}

	exp := NewOnline(env, a, 10, []tracker.Tracker{counter}, nil)

	if ended := exp.RunEpisode(); !ended {
		t.Error("expected experiment to end at the timestep limit")
	}
	if counter.tracked != 11 {
		t.Errorf("expected 11 tracked timesteps, got %v", counter.tracked)
	}
}

func TestSaveWritesTrackedReturns(t *testing.T) {
	env := newTestEnv(t, 15, 1)
	a := newTestAgent(t, env)

	filename := filepath.Join(t.TempDir(), "data.bin")
	saver := tracker.NewReturn(filename)

	exp := NewOnline(env, a, 30, []tracker.Tracker{saver}, nil)
	for ended := false; !ended; {
		ended = exp.RunEpisode()
	}
	if err := exp.Save(); err != nil {
		t.Fatalf("could not save experiment data: %v", err)
	}

	data, err := tracker.LoadData(filename)
	if err != nil {
		t.Fatalf("could not load experiment data: %v", err)
	}
	if len(data) != 2 {
		t.Errorf("expected 2 episodic returns, got %v", len(data))
	}
}

func TestCheckpointsAgentDuringRun(t *testing.T) {
	env := newTestEnv(t, 15, 1)
	a := newTestAgent(t, env)

	dir := filepath.Join(t.TempDir(), "check")
	check := checkpointer.NewNStep(10, a.(checkpointer.Saveable),
		checkpointer.DirEnumerator(0, dir))

	exp := NewOnline(env, a, 30, nil, []checkpointer.Checkpointer{check})
	for ended := false; !ended; {
		ended = exp.RunEpisode()
	}

	// Timestep 10 of each of the two episodes triggers a checkpoint
	for _, name := range []string{"check1", "check2"} {
		path := filepath.Join(filepath.Dir(dir), name, "actor.bin")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected checkpoint file at %v: %v", path, err)
		}
	}
}

func TestRegisterAddsTracker(t *testing.T) {
	env := newTestEnv(t, 25, 1)
	a := newTestAgent(t, env)

	exp := NewOnline(env, a, 10, nil, nil)
	counter := &countingTracker{}
	exp.Register(counter)

	exp.RunEpisode()
	if counter.tracked == 0 {
		t.Error("expected registered tracker to receive timesteps")
	}
	if err := exp.Save(); err != nil {
		t.Fatalf("could not save experiment data: %v", err)
	}
	if !counter.saved {
		t.Error("expected registered tracker to be saved")
	}
}
