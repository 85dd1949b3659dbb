package ppo

import (
	"fmt"
	"reflect"

	"deeprl/agent"
	"deeprl/environment"
	"deeprl/initwfn"
	"deeprl/network"
	"deeprl/solver"
)

func init() {
	// Register ConfigList type so that it can be typed using
	// agent.TypedConfigList to help with serialization/deserialization.
	agent.Register(agent.GaussianPPOMLP, ConfigList{})
}

// ConfigList implements a list of Config's in a more efficient manner
// than simply using a slice of Config's.
type ConfigList struct {
	PolicyLayers      [][]int
	PolicyBiases      [][]bool
	PolicyActivations [][]*network.Activation

	ValueFnLayers      [][]int
	ValueFnBiases      [][]bool
	ValueFnActivations [][]*network.Activation

	PolicySolver  []*solver.Solver
	ValueFnSolver []*solver.Solver

	// Initialization algorithm for weights
	InitWFn []*initwfn.InitWFn

	// On-policy epoch parameters
	EpochLength []int
	Lambda      []float64
	Gamma       []float64

	// Clipped surrogate objective parameters
	Epsilon      []float64
	EntropyCoeff []float64

	// Gradient steps per epoch of data
	PolicyEpochs   []int
	ValueGradSteps []int

	FinishEpisodeOnEpochEnd []bool
}

// NewConfigList returns a new ConfigList as an agent.TypedConfigList
// so that it can safely be JSON serialized and deserialized.
func NewConfigList(
	PolicyLayers [][]int,
	PolicyBiases [][]bool,
	PolicyActivations [][]*network.Activation,
	ValueFnLayers [][]int,
	ValueFnBiases [][]bool,
	ValueFnActivations [][]*network.Activation,
	PolicySolver []*solver.Solver,
	ValueFnSolver []*solver.Solver,
	InitWFn []*initwfn.InitWFn,
	EpochLength []int,
	Lambda []float64,
	Gamma []float64,
	Epsilon []float64,
	EntropyCoeff []float64,
	PolicyEpochs []int,
	ValueGradSteps []int,
	FinishEpisodeOnEpochEnd []bool,
) agent.TypedConfigList {
	configs := ConfigList{
		PolicyLayers:            PolicyLayers,
		PolicyBiases:            PolicyBiases,
		PolicyActivations:       PolicyActivations,
		ValueFnLayers:           ValueFnLayers,
		ValueFnBiases:           ValueFnBiases,
		ValueFnActivations:      ValueFnActivations,
		PolicySolver:            PolicySolver,
		ValueFnSolver:           ValueFnSolver,
		InitWFn:                 InitWFn,
		EpochLength:             EpochLength,
		Lambda:                  Lambda,
		Gamma:                   Gamma,
		Epsilon:                 Epsilon,
		EntropyCoeff:            EntropyCoeff,
		PolicyEpochs:            PolicyEpochs,
		ValueGradSteps:          ValueGradSteps,
		FinishEpisodeOnEpochEnd: FinishEpisodeOnEpochEnd,
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
		len(c.PolicyActivations) * len(c.ValueFnLayers) *
		len(c.ValueFnBiases) * len(c.ValueFnActivations) *
		len(c.PolicySolver) * len(c.ValueFnSolver) * len(c.InitWFn) *
		len(c.EpochLength) * len(c.Lambda) * len(c.Gamma) *
		len(c.Epsilon) * len(c.EntropyCoeff) * len(c.PolicyEpochs) *
		len(c.ValueGradSteps) * len(c.FinishEpisodeOnEpochEnd)
}

// Config implements a configuration for a PPO agent
type Config struct {
	PolicyLayers      []int                 // Actor hidden layer sizes
	PolicyBiases      []bool                // Actor hidden layer biases
	PolicyActivations []*network.Activation // Actor activations

	ValueFnLayers      []int                 // Critic hidden layer sizes
	ValueFnBiases      []bool                // Critic hidden layer biases
	ValueFnActivations []*network.Activation // Critic activations

	PolicySolver  *solver.Solver // Solver for actor weights
	ValueFnSolver *solver.Solver // Solver for critic weights

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// Number of environmental steps per epoch of on-policy data
	EpochLength int

	Lambda float64 // λ for GAE(λ) advantage estimation
	Gamma  float64 // Discount factor, overriding the environment's

	// Importance ratios are clipped to [1-Epsilon, 1+Epsilon] in the
	// surrogate objective
	Epsilon float64

	// Coefficient of the entropy bonus in the policy loss
	EntropyCoeff float64

	// Gradient steps taken on the policy and value function losses
	// for each epoch of data
	PolicyEpochs   int
	ValueGradSteps int

	// Whether the running episode should be played out (with its
	// remaining data discarded) before a new epoch begins
	FinishEpisodeOnEpochEnd bool
}

// BatchSize returns the number of transitions the agent updates on,
// which for an on-policy agent is the epoch length
func (c Config) BatchSize() int {
	return c.EpochLength
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.GaussianPPOMLP
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.PolicySolver == nil || c.ValueFnSolver == nil {
		return fmt.Errorf("validate: missing solver")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.EpochLength < 1 {
		return fmt.Errorf("validate: epoch length must be positive "+
			"\n\thave(%v)", c.EpochLength)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1] "+
			"\n\thave(%v)", c.Lambda)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] "+
			"\n\thave(%v)", c.Gamma)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("validate: clipping radius must be positive "+
			"\n\thave(%v)", c.Epsilon)
	}
	if c.EntropyCoeff < 0 {
		return fmt.Errorf("validate: entropy coefficient must be "+
			"non-negative \n\thave(%v)", c.EntropyCoeff)
	}
	if c.PolicyEpochs < 1 || c.ValueGradSteps < 1 {
		return fmt.Errorf("validate: at least one gradient step must "+
			"be taken on each loss \n\thave(%v policy, %v value)",
			c.PolicyEpochs, c.ValueGradSteps)
	}

	return nil
}

// ValidAgent returns whether the argument agent is a valid agent for
// construction with the Config
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*PPO)
	return ok
}

// CreateAgent creates a new PPO agent based on the configuration
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env, c, int64(seed))
}
