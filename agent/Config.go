package agent

import (
	"deeprl/environment"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes
	CreateAgent(env environment.Environment, seed uint64) (Agent, error)

	// ValidAgent returns whether the argument agent is valid for the
	// Config
	ValidAgent(Agent) bool

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error

	// Type returns the type of agent the Config creates
	Type() Type
}

// Type represents a specific type of agent Config. Config's with this
// type can create Agents of the corresponding type.
type Type string

const (
	GaussianSACMLP Type = "GaussianSAC-MLP"
	TD3MLP         Type = "TD3-MLP"
	GaussianPPOMLP Type = "GaussianPPO-MLP"
)

// PolicyType represents a type of distribution that a policy could be
type PolicyType string

const (
	Gaussian      PolicyType = "Gaussian"
	SquashedGauss PolicyType = "SquashedGaussian"
	Deterministic PolicyType = "Deterministic"
)
