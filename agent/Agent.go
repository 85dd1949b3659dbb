// Package agent defines an agent interface
package agent

import (
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"deeprl/network"
	"deeprl/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// A Closer is an agent that must be closed after it is done learning
type Closer interface {
	Agent
	Close() error
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// target and behaviour policy. For a given agent, the Policy and Learner
// should have pointers to the same weights so that any changes the learner
// makes to the weights are reflected in the actions the Policy chooses
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// NNPolicy represents a policy that uses neural network function
// approximation.
type NNPolicy interface {
	Policy
	Network() network.NeuralNet
	Close() error
}

// LogPdfOfer is a NNPolicy that can compute the log probability of
// actions taken in given states. The log PDF is exposed as a graph
// node so that it can be embedded in an external loss function; the
// node holds the log PDF values only after an external VM runs the
// policy's graph.
type LogPdfOfer interface {
	NNPolicy

	// LogPdfOf sets the policy's state and action inputs so that a
	// run of the policy's graph computes the log PDF of taking the
	// argument actions in the argument states
	LogPdfOf(states, actions []float64) (*G.Node, error)

	// LogPdfNode returns the node holding the log PDF computation
	LogPdfNode() *G.Node

	// LogPdfVal returns the value of the node returned by LogPdfNode
	LogPdfVal() G.Value
}
