package td3

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
	agent.Register(agent.TD3MLP, ConfigList{})
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

	// Initialization algorithm for weights
	InitWFn []*initwfn.InitWFn

	// Experience replay parameters
	ExpReplay []expreplay.Config

	// Exploration and target policy smoothing
	ExplorationStdDev     []float64
	TargetSmoothingStdDev []float64
	TargetSmoothingClip   []float64

	// Update schedule
	WarmupSteps []int
	PolicyDelay []int
	Tau         []float64
}

// NewConfigList returns a new ConfigList as an agent.TypedConfigList
// so that it can safely be JSON serialized and deserialized.
func NewConfigList(
	PolicyLayers [][]int,
	PolicyBiases [][]bool,
	PolicyActivations [][]*network.Activation,
	CriticLayers [][]int,
	CriticBiases [][]bool,
	CriticActivations [][]*network.Activation,
	PolicySolver []*solver.Solver,
	CriticSolver []*solver.Solver,
	InitWFn []*initwfn.InitWFn,
	ExpReplay []expreplay.Config,
	ExplorationStdDev []float64,
	TargetSmoothingStdDev []float64,
	TargetSmoothingClip []float64,
	WarmupSteps []int,
	PolicyDelay []int,
	Tau []float64,
) agent.TypedConfigList {
	configs := ConfigList{
		PolicyLayers:          PolicyLayers,
		PolicyBiases:          PolicyBiases,
		PolicyActivations:     PolicyActivations,
		CriticLayers:          CriticLayers,
		CriticBiases:          CriticBiases,
		CriticActivations:     CriticActivations,
		PolicySolver:          PolicySolver,
		CriticSolver:          CriticSolver,
		InitWFn:               InitWFn,
		ExpReplay:             ExpReplay,
		ExplorationStdDev:     ExplorationStdDev,
		TargetSmoothingStdDev: TargetSmoothingStdDev,
		TargetSmoothingClip:   TargetSmoothingClip,
		WarmupSteps:           WarmupSteps,
		PolicyDelay:           PolicyDelay,
		Tau:                   Tau,
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
		len(c.PolicySolver) * len(c.CriticSolver) * len(c.InitWFn) *
		len(c.ExpReplay) * len(c.ExplorationStdDev) *
		len(c.TargetSmoothingStdDev) * len(c.TargetSmoothingClip) *
		len(c.WarmupSteps) * len(c.PolicyDelay) * len(c.Tau)
}

// Config implements a configuration for a TD3 agent
type Config struct {
	PolicyLayers      []int                 // Actor hidden layer sizes
	PolicyBiases      []bool                // Actor hidden layer biases
	PolicyActivations []*network.Activation // Actor activations

	CriticLayers      []int                 // Critic hidden layer sizes
	CriticBiases      []bool                // Critic hidden layer biases
	CriticActivations []*network.Activation // Critic activations

	PolicySolver *solver.Solver // Solver for actor weights
	CriticSolver *solver.Solver // Solver for both critics' weights

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// Experience replay parameters
	ExpReplay expreplay.Config

	// Standard deviation of the Gaussian exploration noise added to
	// actions in training mode
	ExplorationStdDev float64

	// Target policy smoothing: the noise added to target actions when
	// computing critic targets is drawn from a zero-mean Gaussian with
	// standard deviation TargetSmoothingStdDev and clipped to
	// ±TargetSmoothingClip
	TargetSmoothingStdDev float64
	TargetSmoothingClip   float64

	// Number of initial environmental steps on which actions are
	// selected uniformly at random
	WarmupSteps int

	// Gradient steps between actor and target network updates
	PolicyDelay int

	Tau float64 // Polyak averaging constant
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.TD3MLP
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.PolicySolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("validate: missing solver")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.ExplorationStdDev < 0 {
		return fmt.Errorf("validate: exploration standard deviation "+
			"must be non-negative \n\thave(%v)", c.ExplorationStdDev)
	}
	if c.TargetSmoothingStdDev < 0 {
		return fmt.Errorf("validate: target smoothing standard "+
			"deviation must be non-negative \n\thave(%v)",
			c.TargetSmoothingStdDev)
	}
	if c.TargetSmoothingClip < 0 {
		return fmt.Errorf("validate: target smoothing clip must be "+
			"non-negative \n\thave(%v)", c.TargetSmoothingClip)
	}
	if c.WarmupSteps < 0 {
		return fmt.Errorf("validate: warmup steps must be "+
			"non-negative \n\thave(%v)", c.WarmupSteps)
	}
	if c.PolicyDelay < 1 {
		return fmt.Errorf("validate: the actor must be updated at "+
			"least every gradient step \n\twant(>=1) \n\thave(%v)",
			c.PolicyDelay)
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in [0, 1] "+
			"\n\thave(%v)", c.Tau)
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
	_, ok := a.(*TD3)
	return ok
}

// CreateAgent creates a new TD3 agent based on the configuration
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env, c, int64(seed))
}
