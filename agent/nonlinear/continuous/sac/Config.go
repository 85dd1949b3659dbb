package sac

import (
	"fmt"
	"reflect"

	"deeprl/agent"
	"deeprl/environment"
	"deeprl/expreplay"
	"deeprl/initwfn"
	"deeprl/network"
	"deeprl/solver"
)

func init() {
	// Register ConfigList type so that it can be typed using
	// agent.TypedConfigList to help with serialization/deserialization.
	agent.Register(agent.GaussianSACMLP, ConfigList{})
}

// ConfigList implements a list of Config's in a more efficient manner
// than simply using a slice of Config's.
type ConfigList struct {
	PolicyLayers      [][]int
	PolicyBiases      [][]bool
	PolicyActivations [][]*network.Activation

	CriticLayers      [][]int
	CriticBiases      [][]bool
	CriticActivations [][]*network.Activation

	PolicySolver []*solver.Solver
	CriticSolver []*solver.Solver
	AlphaSolver  []*solver.Solver

	// Initialization algorithm for weights
	InitWFn []*initwfn.InitWFn

	// Experience replay parameters
	ExpReplay []expreplay.Config

	// Entropy temperature
	InitialAlpha  []float64
	LearnAlpha    []bool
	TargetEntropy []float64

	// Target net updates
	Tau                  []float64
	TargetUpdateInterval []int
}

// NewConfigList returns a new ConfigList as an agent.TypedConfigList.
// Because the returned value is a TypedConfigList, it can safely be
// JSON serialized and deserialized without specifying what the type of
// the ConfigList is.
func NewConfigList(
	PolicyLayers [][]int,
	PolicyBiases [][]bool,
	PolicyActivations [][]*network.Activation,
	CriticLayers [][]int,
	CriticBiases [][]bool,
	CriticActivations [][]*network.Activation,
	PolicySolver []*solver.Solver,
	CriticSolver []*solver.Solver,
	AlphaSolver []*solver.Solver,
	InitWFn []*initwfn.InitWFn,
	ExpReplay []expreplay.Config,
	InitialAlpha []float64,
	LearnAlpha []bool,
	TargetEntropy []float64,
	Tau []float64,
	TargetUpdateInterval []int,
) agent.TypedConfigList {
	configs := ConfigList{
		PolicyLayers:         PolicyLayers,
		PolicyBiases:         PolicyBiases,
		PolicyActivations:    PolicyActivations,
		CriticLayers:         CriticLayers,
		CriticBiases:         CriticBiases,
		CriticActivations:    CriticActivations,
		PolicySolver:         PolicySolver,
		CriticSolver:         CriticSolver,
		AlphaSolver:          AlphaSolver,
		InitWFn:              InitWFn,
		ExpReplay:            ExpReplay,
		InitialAlpha:         InitialAlpha,
		LearnAlpha:           LearnAlpha,
		TargetEntropy:        TargetEntropy,
		Tau:                  Tau,
		TargetUpdateInterval: TargetUpdateInterval,
	}

	return agent.NewTypedConfigList(configs)
}

// Type returns the type of Config stored in the list
func (c ConfigList) Type() agent.Type {
	return c.Config().Type()
}

// NumFields returns the number of settable fields in a Config
func (c ConfigList) NumFields() int {
	rValue := reflect.ValueOf(c)
	return rValue.NumField()
}

// Config returns an empty Config of the same type as that stored
// by the ConfigList
func (c ConfigList) Config() agent.Config {
	return Config{}
}

// Len returns the number of Config's in the list
func (c ConfigList) Len() int {
	return len(c.PolicyLayers) * len(c.PolicyBiases) *
		len(c.PolicyActivations) * len(c.CriticLayers) *
		len(c.CriticBiases) * len(c.CriticActivations) *
		len(c.PolicySolver) * len(c.CriticSolver) * len(c.AlphaSolver) *
		len(c.InitWFn) * len(c.ExpReplay) * len(c.InitialAlpha) *
		len(c.LearnAlpha) * len(c.TargetEntropy) * len(c.Tau) *
		len(c.TargetUpdateInterval)
}

// Config implements a configuration for a SAC agent
type Config struct {
	PolicyLayers      []int                 // Actor hidden layer sizes
	PolicyBiases      []bool                // Actor hidden layer biases
	PolicyActivations []*network.Activation // Actor activations

	CriticLayers      []int                 // Critic hidden layer sizes
	CriticBiases      []bool                // Critic hidden layer biases
	CriticActivations []*network.Activation // Critic activations

	PolicySolver *solver.Solver // Solver for actor weights
	CriticSolver *solver.Solver // Solver for both critics' weights
	AlphaSolver  *solver.Solver // Solver for the entropy temperature

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// Experience replay parameters
	ExpReplay expreplay.Config

	// Entropy temperature. If LearnAlpha is true, the temperature is
	// adjusted toward TargetEntropy; a TargetEntropy of 0 selects the
	// default of -(number of action dimensions).
	InitialAlpha  float64
	LearnAlpha    bool
	TargetEntropy float64

	// Target net updates
	Tau                  float64 // Polyak averaging constant
	TargetUpdateInterval int     // Gradient steps between target updates
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.GaussianSACMLP
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.PolicySolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("validate: missing solver")
	}
	if c.LearnAlpha && c.AlphaSolver == nil {
		return fmt.Errorf("validate: cannot learn the entropy " +
			"temperature without an alpha solver")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.InitialAlpha < 0 {
		return fmt.Errorf("validate: initial temperature must be "+
			"non-negative \n\thave(%v)", c.InitialAlpha)
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in [0, 1] "+
			"\n\thave(%v)", c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: target networks must be updated "+
			"at least every gradient step \n\twant(>=1) \n\thave(%v)",
			c.TargetUpdateInterval)
	}
	if c.ExpReplay.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.ExpReplay.BatchSize)
	}

	return nil
}

// ValidAgent returns whether the argument agent is a valid agent for
// construction with the Config
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*SAC)
	return ok
}

// CreateAgent creates a new SAC agent based on the configuration
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env, c, int64(seed))
}
