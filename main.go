package main

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r1"

	"deeprl/agent/nonlinear/continuous/sac"
	"deeprl/environment"
	"deeprl/environment/classiccontrol/pendulum"
	"deeprl/experiment"
	"deeprl/experiment/tracker"
	"deeprl/expreplay"
	"deeprl/initwfn"
	"deeprl/network"
	"deeprl/solver"
)

func main() {
	var seed uint64 = 192382

	// Create the environment
	bounds := r1.Interval{Min: -0.1, Max: 0.1}

	s := environment.NewUniformStarter([]r1.Interval{bounds, bounds}, seed)
	task := pendulum.NewSwingUp(s, 500)
	env, _ := pendulum.NewContinuous(task, 0.99)

	// Create the learning algorithm
	batchSize := 256
	policySolver, err := solver.NewAdam(3e-4, 1e-8, 0.9, 0.999, batchSize, 1.0)
	if err != nil {
		log.Fatalf("could not create policy solver: %v", err)
	}
	criticSolver, err := solver.NewAdam(3e-4, 1e-8, 0.9, 0.999, batchSize, 1.0)
	if err != nil {
		log.Fatalf("could not create critic solver: %v", err)
	}
	alphaSolver, err := solver.NewDefaultAdam(3e-4, batchSize)
	if err != nil {
		log.Fatalf("could not create alpha solver: %v", err)
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}

	config := sac.Config{
		PolicyLayers:      []int{256, 256},
		PolicyBiases:      []bool{true, true},
		PolicyActivations: []*network.Activation{network.ReLU(), network.ReLU()},

		CriticLayers:      []int{256, 256},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{network.ReLU(), network.ReLU()},

		PolicySolver: policySolver,
		CriticSolver: criticSolver,
		AlphaSolver:  alphaSolver,

		InitWFn: init,
		ExpReplay: expreplay.Config{
			BatchSize:         batchSize,
			MaxReplayCapacity: 100_000,
			MinReplayCapacity: 1_000,
		},

		InitialAlpha: 0.2,
		LearnAlpha:   true,

		Tau:                  0.005,
		TargetUpdateInterval: 1,
	}

	agent, err := sac.New(env, config, int64(seed))
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}

	// Experiment
	returns := tracker.NewReturn("./data.bin")
	db := tracker.NewSQLiteReturn("./returns.db", "sac pendulum swing-up")
	e := experiment.NewOnline(env, agent, 100_000,
		[]tracker.Tracker{returns, db}, nil)
	e.Run()
	if err := e.Save(); err != nil {
		log.Fatalf("could not save experiment data: %v", err)
	}

	data, err := tracker.LoadData("./data.bin")
	if err != nil {
		log.Fatalf("could not load experiment data: %v", err)
	}
	fmt.Println(data[len(data)-10:])
}
